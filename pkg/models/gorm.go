package models

// ModelsToAutoMigrate lists the models in dependency order.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Design{},
		&DesignSnapshot{},
		&DesignCommand{},
		&Invitation{},
		&Permission{},
		&Publication{},
		&DesignEventOutbox{},
	}
}
