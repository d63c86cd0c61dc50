package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string
	CORSOrigin string

	// InternalKey lifts trusted services into the internal rate limit tier.
	InternalKey string

	VNPay VNPayConfig

	// Deprecated compatibility switch: lets a gateway callback that matches no
	// payment by reference attach to the most recent pending VNPay payment.
	LegacyFallbackMatch bool

	NotifyDriver    string
	KafkaBrokers    []string
	KafkaOrderTopic string
	AMQPURL         string
	AMQPExchange    string

	OTelServiceName string
	OTelEndpoint    string
}

type VNPayConfig struct {
	TmnCode         string
	HashSecret      string
	PayURL          string
	ReturnURL       string
	StrictSignature bool
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:      os.Getenv("DB_HOST"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		DBPort:      os.Getenv("DB_PORT"),
		AppPort:     getEnvOrDefault("APP_PORT", "8080"),
		AppEnv:      os.Getenv("APP_ENV"),
		JWTSecret:   os.Getenv("SECRET_KEY"),
		CORSOrigin:  getEnvOrDefault("CORS_ORIGIN", "http://localhost:3000"),
		InternalKey: os.Getenv("INTERNAL_SECRET_KEY"),
		VNPay: VNPayConfig{
			TmnCode:         os.Getenv("VNP_TMN_CODE"),
			HashSecret:      os.Getenv("VNP_HASH_SECRET"),
			PayURL:          getEnvOrDefault("VNP_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			ReturnURL:       os.Getenv("VNP_RETURN_URL"),
			StrictSignature: getEnvBool("VNP_STRICT_SIGNATURE", false),
		},
		LegacyFallbackMatch: getEnvBool("PAYMENT_LEGACY_FALLBACK_MATCH", false),
		NotifyDriver:        getEnvOrDefault("NOTIFY_DRIVER", "log"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic:     getEnvOrDefault("KAFKA_ORDER_TOPIC", "order-status"),
		AMQPURL:             os.Getenv("AMQP_URL"),
		AMQPExchange:        getEnvOrDefault("AMQP_EXCHANGE", "order.events"),
		OTelServiceName:     getEnvOrDefault("OTEL_SERVICE_NAME", "clothstore-be"),
		OTelEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
