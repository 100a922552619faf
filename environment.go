package s3installer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultDotenvPath is read before flags are parsed, if it exists.
const DefaultDotenvPath = ".env"

// LoadDotenv loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set in the environment are kept. A missing
// file is ignored only when path is empty and the default file is used.
func LoadDotenv(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultDotenvPath
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// dotenvPath is the dotenv file named by S3INSTALLER_ENV_FILE.
func dotenvPath() string {
	return os.Getenv("S3INSTALLER_ENV_FILE")
}

// Environment holds the values the installer takes from the process
// environment. The credentials are not used by the installer itself; they
// are passed through verbatim to the generated Terraform variables.
type Environment struct {
	AccountID            string `name:"aws-account-id" help:"AWS account id expected to own the target buckets" env:"AWS_ACCOUNT_ID"`
	Region               string `name:"aws-region" help:"AWS region" env:"AWS_REGION"`
	LariatAPIKey         string `name:"lariat-api-key" help:"Lariat API key" env:"LARIAT_API_KEY"`
	LariatApplicationKey string `name:"lariat-application-key" help:"Lariat application key" env:"LARIAT_APPLICATION_KEY"`
	SinkAccessKeyID      string `name:"sink-access-key-id" help:"access key id of the Lariat sink" env:"LARIAT_TMP_AWS_ACCESS_KEY_ID"`
	SinkSecretAccessKey  string `name:"sink-secret-access-key" help:"secret access key of the Lariat sink" env:"LARIAT_TMP_AWS_SECRET_ACCESS_KEY"`
}

// Restrict validates the environment. The account id is required because
// every bucket lookup asserts its owner.
func (env *Environment) Restrict() error {
	if env.AccountID == "" {
		return &ConfigError{Key: "AWS_ACCOUNT_ID", Reason: "is required"}
	}
	return nil
}

// ConfigError reports invalid or missing configuration.
type ConfigError struct {
	Key    string
	Reason string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", err.Key, err.Reason)
}
