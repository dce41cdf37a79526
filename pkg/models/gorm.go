package models

// ModelsToAutoMigrate returns the models that GORM should auto-migrate,
// in dependency order. Used by tests and local development; production
// deployments apply SQL migrations instead.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Document{},
		&RoutingOutbox{},
		&RoutingExecution{},
		&ServiceToken{},
	}
}
