package helpers

import (
	"os"
	"strings"
)

func IsDeployed() bool {
	sstStage := os.Getenv("SST_STAGE")
	// `.github/workflows/deploy-feature.yml` deploys any branch that begins with `feature/*` to aws as `feature-*`
	return sstStage == "prod" || strings.HasPrefix(sstStage, "feature-")
}

func IsRemoteDB() bool {
	return os.Getenv("USE_REMOTE_DB") == "true" || IsDeployed()
}

// GetDbTableName resolves the deployed table name for a prefix, falling back to the
// bare prefix for local dynamo.
func GetDbTableName(tablePrefix string) string {
	if !IsRemoteDB() {
		return tablePrefix
	}
	deployed := os.Getenv("SST_Table_tableName_" + tablePrefix)
	if deployed == "" {
		return tablePrefix
	}
	return deployed
}
