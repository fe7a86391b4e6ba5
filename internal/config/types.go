package config

// Config represents the complete cpg-chip configuration.
type Config struct {
	Hail        HailConfig               `yaml:"hail"`
	Workflow    WorkflowConfig           `yaml:"workflow"`
	Storage     map[string]StorageConfig `yaml:"storage"`
	Cromwell    CromwellConfig           `yaml:"cromwell"`
	Logging     LoggingConfig            `yaml:"logging"`
	Mutect2CHIP Section                  `yaml:"mutect2_chip,omitempty"`

	// SourceFiles lists the files merged into this config, in load order.
	SourceFiles []string `yaml:"-"`
	// Fingerprint is the BLAKE3 digest of the merged source bytes.
	Fingerprint string `yaml:"-"`
}

// HailConfig defines batch service settings.
type HailConfig struct {
	BillingProject string `yaml:"billing_project"`
	Bucket         string `yaml:"bucket,omitempty"`
	ServiceURL     string `yaml:"service_url"`
	Namespace      string `yaml:"namespace"`
	TokensFile     string `yaml:"tokens_file,omitempty"`
}

// WorkflowConfig identifies the dataset and run being operated on.
type WorkflowConfig struct {
	Dataset      string `yaml:"dataset"`
	AccessLevel  string `yaml:"access_level"`
	Name         string `yaml:"name"`
	DriverImage  string `yaml:"driver_image,omitempty"`
	WorkflowName string `yaml:"workflow_name,omitempty"`
	RunID        string `yaml:"run_id,omitempty"`
	OutputPrefix string `yaml:"output_prefix"`
}

// StorageConfig defines the buckets owned by a dataset.
type StorageConfig struct {
	Default  string `yaml:"default"`
	Tmp      string `yaml:"tmp,omitempty"`
	Web      string `yaml:"web,omitempty"`
	Analysis string `yaml:"analysis,omitempty"`
}

// CromwellConfig defines how driver jobs reach the workflow engine.
type CromwellConfig struct {
	URL           string `yaml:"url"`
	Audience      string `yaml:"audience,omitempty"`
	SecretProject string `yaml:"secret_project"`
}

// LoggingConfig defines log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AccessLevelTest is the only access level with relaxed checkout policy.
const AccessLevelTest = "test"

// Defaults returns a Config with the values used when a key is absent.
func Defaults() *Config {
	return &Config{
		Hail: HailConfig{
			ServiceURL: "https://batch.hail.is",
			Namespace:  "default",
		},
		Workflow: WorkflowConfig{
			OutputPrefix: "mgeaghan/mutect2-chip",
		},
		Cromwell: CromwellConfig{
			URL:           "https://cromwell.populationgenomics.org.au",
			SecretProject: "analysis-runner",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
