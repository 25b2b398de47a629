// Package config loads eventsource client configuration from YAML files
// and environment variables.
//
// Programmatic configuration through eventsource.Config is always enough;
// this package exists for services that keep their stream settings next to
// the rest of their configuration files.
//
//	cfg, err := config.Load(config.LoaderConfig{ConfigFile: "stream.yml"})
//	if err != nil {
//	    return err
//	}
//	client, err := eventsource.New(handler, cfg)
//
// Environment variables override file values using the prefix (default
// "EVENTSOURCE"), so EVENTSOURCE_URL overrides the "url" key. An optional
// .env file is loaded first.
package config
