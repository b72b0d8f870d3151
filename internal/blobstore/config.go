// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package blobstore

// S3Config configures an S3-compatible endpoint. GCS is reached through
// its S3 interoperability API with the same settings.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	InsecureTLS     bool   `mapstructure:"insecure_tls"`
	RoleARN         string `mapstructure:"role_arn"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig configures Azure Blob Storage. Credentials come from the
// default Azure credential chain.
type AzureConfig struct {
	// EndpointTemplate is formatted with the storage account name.
	EndpointTemplate string `mapstructure:"endpoint_template"`
}

type Config struct {
	S3       S3Config    `mapstructure:"s3"`
	GCS      S3Config    `mapstructure:"gcs"`
	Azure    AzureConfig `mapstructure:"azure"`
	FileRoot string      `mapstructure:"file_root"`
}

func DefaultConfig() Config {
	return Config{
		GCS: S3Config{
			Endpoint: "https://storage.googleapis.com",
			Region:   "auto",
		},
		Azure: AzureConfig{
			EndpointTemplate: "https://%s.blob.core.windows.net/",
		},
	}
}
