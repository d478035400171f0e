// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("data.creationdir", "data/creation")
	viper.SetDefault("data.motiondir", "data/motion")
	viper.SetDefault("data.persistencedir", "data/persistence")
	viper.SetDefault("data.maxfiles", 3)
	viper.SetDefault("data.dateformat", "02-01-2006")

	viper.SetDefault("output.processedpath", "processed")
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "processed/atlas.db")

	viper.SetDefault("anomaly.enabled", true)
	viper.SetDefault("anomaly.contamination", 0.01)
	viper.SetDefault("anomaly.estimators", 100)
	viper.SetDefault("anomaly.seed", 42)
	viper.SetDefault("anomaly.dbscan.enabled", true)
	viper.SetDefault("anomaly.dbscan.eps", 0.5)
	viper.SetDefault("anomaly.dbscan.minsamples", 5)

	viper.SetDefault("patterns.enabled", true)
	viper.SetDefault("patterns.minoccurrences", 5)

	viper.SetDefault("graph.enabled", false)
	viper.SetDefault("graph.uri", "")
	viper.SetDefault("graph.username", "neo4j")
	viper.SetDefault("graph.password", "")
	viper.SetDefault("graph.workers", 4)
	viper.SetDefault("graph.timeoutseconds", 30)
	viper.SetDefault("graph.similaritythreshold", 0.8)
	viper.SetDefault("graph.similaritymaxnodes", 50)
	viper.SetDefault("graph.similaritymaxedges", 50)
	viper.SetDefault("graph.precedencewindowdays", 30)
	viper.SetDefault("graph.precedencemaxedges", 20)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "processed/atlas.log")
}
