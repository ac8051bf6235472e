package rabbitmq

// QueueConfig очередь и ключ маршрутизации, с которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

const (
	// ActivationRoutingKey ключ для писем с кодом активации.
	ActivationRoutingKey = "activation"
	// ActivationQueue очередь, которую читает сервис отправки писем.
	ActivationQueue = "notifications.activation"
)

// GetNotificationQueues возвращает очереди, объявляемые при старте сервисов.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: ActivationQueue, RoutingKey: ActivationRoutingKey},
	}
}
