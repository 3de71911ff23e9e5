package cel

// FilterExpressionExamples lists subscriber filters that compile against the
// event variables.
var FilterExpressionExamples = map[string]string{
	"event_type_equals":   `eventType == "Order.Created"`,
	"event_type_in_list":  `eventType in ["Order.Created", "Order.Updated"]`,
	"subject_prefix":      `subject.startsWith("orders/")`,
	"subject_suffix":      `subject.endsWith(".jpg")`,
	"data_numeric":        `has(data.total) && data.total > 100.0`,
	"data_nested_field":   `has(data.customer) && data.customer.tier == "premium"`,
	"data_version":        `dataVersion == "" || dataVersion == "1.0"`,
	"combined_conditions": `eventType == "Order.Created" && subject.contains("/eu/")`,
}
