package config

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Notify struct {
		QueueSize        int `mapstructure:"queueSize"`
		EmitIntervalSecs int `mapstructure:"emitIntervalSecs"`
		PollIntervalSecs int `mapstructure:"pollIntervalSecs"`
	} `mapstructure:"notify"`
}
