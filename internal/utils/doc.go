// Package utils holds the ambient plumbing shared by the gitcollect commands: the Viper backed ConfigurationLoader
// and the zap LoggerFactory.
package utils
