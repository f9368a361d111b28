package model

// AutoMigrateとmigrationの対象
func All() []interface{} {
	return []interface{}{
		&Product{},
		&Cart{},
		&CartItem{},
		&PromoCode{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&WebhookEvent{},
		&InventoryAdjustment{},
		&AuditLog{},
	}
}
