package variables

import (
	"log"
	"os"
	"strconv"
)

const (
	HTTP_PORT_DEFAULT = "10000"
	HTTP_PORT_NAME    = "HTTP_PORT"

	SECRET_KEY_DEFAULT = "change-me"
	SECRET_KEY_NAME    = "SECRET_KEY"

	DATABASE_URL_DEFAULT = "file:data.sqlite3"
	DATABASE_URL_NAME    = "DATABASE_URL"

	ALLOWED_ORIGINS_DEFAULT = "*"
	ALLOWED_ORIGINS_NAME    = "ALLOWED_ORIGINS"

	ENABLE_CALLS_DEFAULT = "true"
	ENABLE_CALLS_NAME    = "ENABLE_CALLS"

	REQUIRE_ROOM_KEY_DEFAULT = "false"
	REQUIRE_ROOM_KEY_NAME    = "REQUIRE_ROOM_KEY"

	MAX_ROOM_MEMBERS_DEFAULT = "10"
	MAX_ROOM_MEMBERS_NAME    = "MAX_ROOM_MEMBERS"

	TURN_URL_NAME        = "TURN_URL"
	TURN_USERNAME_NAME   = "TURN_USERNAME"
	TURN_CREDENTIAL_NAME = "TURN_CREDENTIAL"

	TELEGRAM_BOT_TOKEN_NAME     = "TELEGRAM_BOT_TOKEN"
	TELEGRAM_ADMIN_CHAT_ID_NAME = "TELEGRAM_ADMIN_CHAT_ID"

	BASE_URL_DEFAULT = "http://localhost:10000"
	BASE_URL_NAME    = "BASE_URL"

	TZ_DEFAULT = "Europe/Istanbul"
	TZ_NAME    = "TZ"
)

func Env(variableName, defaultValue string) string {
	if variable := os.Getenv(variableName); variable != "" {
		log.Printf("[%s]: %s", variableName, variable)
		return variable
	}
	log.Printf("[%s_DEFAULT]: %s", variableName, defaultValue)
	return defaultValue
}

// EnvOptional reads a variable that has no meaningful default. Missing
// values are returned as empty strings and never logged, since some of
// them are credentials.
func EnvOptional(variableName string) string {
	return os.Getenv(variableName)
}

func ParseInt(value string) (int, error) {
	return strconv.Atoi(value)
}

func ParseBool(value string) (bool, error) {
	return strconv.ParseBool(value)
}
