package httpd

// Config 状态页服务配置
type Config struct {
	// Addr 监听地址，为空时不启动
	Addr string `yaml:"addr"`

	// Format 状态页编码：cbor 或 json，默认 cbor
	Format Format `yaml:"format"`

	// MaxHeader 请求头上限（字节），默认 8KB
	MaxHeader int `yaml:"max_header"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:      "127.0.0.1:8080",
		Format:    FormatCBOR,
		MaxHeader: defaultMaxHeader,
	}
}
