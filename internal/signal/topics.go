package signal

// Bus topic layout. Concrete topics carry a symbol or order id suffix;
// subscribers use the trailing-wildcard patterns.
const (
	PatternMarketData  = "trading:market_data:*"
	PatternSignals     = "trading:signals:*"
	PatternOrders      = "trading:orders:*"
	TopicPerformance   = "trading:system:performance"
	topicMarketDataPre = "trading:market_data:"
	topicSignalsPre    = "trading:signals:"
	topicOrdersPre     = "trading:orders:"
)

// TopicMarketData returns the tick topic for one symbol.
func TopicMarketData(symbol string) string { return topicMarketDataPre + symbol }

// TopicSignals returns the signal topic for one symbol.
func TopicSignals(symbol string) string { return topicSignalsPre + symbol }

// TopicOrders returns the status topic for one order.
func TopicOrders(orderID string) string { return topicOrdersPre + orderID }
