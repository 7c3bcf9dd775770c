package proxycmder

var (
	ProxyConfig  = proxyConfig
	NewPublisher = newPublisher
)
