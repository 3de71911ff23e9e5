package models

const (
	EventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	EventTypeNotification           = "Notification"
	EventTypeValidation             = "SubscriptionValidation"
)

const (
	HeaderEventType        = "aeg-event-type"
	HeaderSubscriptionName = "aeg-subscription-name"
	HeaderDataVersion      = "aeg-data-version"
	HeaderMetadataVersion  = "aeg-metadata-version"
	HeaderDeliveryCount    = "aeg-delivery-count"
)

const MetadataVersion = "1"

type SubscriptionValidationData struct {
	ValidationCode string `json:"validationCode"`
	ValidationURL  string `json:"validationUrl"`
}

type ValidationAcknowledgement struct {
	ValidationResponse string `json:"validationResponse"`
}
