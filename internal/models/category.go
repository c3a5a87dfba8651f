package models

type Category struct {
	ID    int64  `json:"id" gorm:"primaryKey"`
	Name  string `json:"name" gorm:"not null"`
	Color string `json:"color"`

	TaskCount      int `json:"taskCount" gorm:"-"`
	CompletedCount int `json:"completedCount" gorm:"-"`
}

func FindCategory(categories []Category, id int64) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
