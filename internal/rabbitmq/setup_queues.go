package rabbitmq

// Exchange и очереди для доставки ссылок входа
const (
	AuthExchange        = "auth"
	MagicLinkQueue      = "auth.magic_link"
	MagicLinkRoutingKey = "magic_link"
)

// QueueConfig очередь и ключ маршрутизации, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetAuthQueues возвращает очереди exchange AuthExchange.
func GetAuthQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: MagicLinkQueue, RoutingKey: MagicLinkRoutingKey},
	}
}
