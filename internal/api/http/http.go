package http

type Config struct {
	Port           uint     `mapstructure:"port"`
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
