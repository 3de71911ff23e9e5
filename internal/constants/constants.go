package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultAdvertisedHost         = "localhost"
	DefaultAdminPort              = 9000
	DefaultReadTimeoutSeconds     = 30
	DefaultWriteTimeoutSeconds    = 30
	DefaultDeliveryTimeoutSeconds = 10
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Limits enforced on inbound notification requests.
const (
	MaxPayloadBytes = 1536000
	MaxEventBytes   = 66560
)

const (
	ServiceName = "gridsim"
)

const (
	NotificationPath = "/api/events"
	RootPath         = "/"
	ValidationPath   = "/validate"
	ValidationParam  = "id"
)

const (
	HeaderSasKey   = "aeg-sas-key"
	HeaderSasToken = "aeg-sas-token"
)

const (
	ValidationSuccessMessage = "Webhook successfully validated as a subscription endpoint."
)

// TopicResourceFormat builds the topic attribute stamped on delivered events.
const TopicResourceFormat = "/subscriptions/%s/resourceGroups/eventGridSimulator/providers/Microsoft.EventGrid/topics/%s"
