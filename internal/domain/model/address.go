package model

import "strings"

// 配送先住所のスナップショット。注文に埋め込んで保存する。
type ShippingAddress struct {
	//宛名
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	//番地など
	Line1 string `gorm:"type:varchar(255);not null" json:"line1"`

	//建物名など
	Line2 string `gorm:"type:varchar(255)" json:"line2"`

	City       string `gorm:"type:varchar(255);not null" json:"city"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`

	//国名（税率と送料の判定に使う）
	Country string `gorm:"type:varchar(100);not null" json:"country"`

	Phone string `gorm:"type:varchar(30)" json:"phone"`
}

// Missingは必須項目のうち空のものを返す
func (a ShippingAddress) Missing() []string {
	var missing []string
	if strings.TrimSpace(a.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	return missing
}
