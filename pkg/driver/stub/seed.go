package stub

import (
	"time"

	"github.com/workledger/workledger/pkg/models"
)

// SeedTime stamps every seeded entity.
var SeedTime = time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)

// Seed returns a fresh copy of the fixed dataset.
func Seed() []models.Entity {
	ts := models.Timestamps{CreatedAt: SeedTime, UpdatedAt: SeedTime}
	hired := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	return []models.Entity{
		&models.Company{ID: 1, Name: "Acme Logistics", Industry: "logistics", Country: "DE", Timestamps: ts},
		&models.Company{ID: 2, Name: "Northwind Health", Industry: "healthcare", Country: "NL", Timestamps: ts},
		&models.Company{ID: 3, Name: "Globex Engineering", Industry: "engineering", Country: "US", Timestamps: ts},

		&models.Employee{ID: 40, CompanyID: 1, FirstName: "Ada", LastName: "Moreau", Email: "ada.moreau@acme.example", Position: "Dispatcher", HiredAt: hired(2019, time.March, 4), Active: true, Timestamps: ts},
		&models.Employee{ID: 41, CompanyID: 1, FirstName: "Bruno", LastName: "Keller", Email: "bruno.keller@acme.example", Position: "Driver", HiredAt: hired(2020, time.June, 15), Active: true, Timestamps: ts},
		&models.Employee{ID: 42, CompanyID: 2, FirstName: "Chiara", LastName: "Vos", Email: "chiara.vos@northwind.example", Position: "Nurse", HiredAt: hired(2018, time.September, 1), Active: true, Timestamps: ts},
		&models.Employee{ID: 43, CompanyID: 2, FirstName: "Dmitri", LastName: "Ahn", Email: "dmitri.ahn@northwind.example", Position: "Administrator", HiredAt: hired(2021, time.January, 11), Active: false, Timestamps: ts},
		&models.Employee{ID: 44, CompanyID: 3, FirstName: "Emeka", LastName: "Okafor", Email: "emeka.okafor@globex.example", Position: "Engineer", HiredAt: hired(2022, time.February, 28), Active: true, Timestamps: ts},
		&models.Employee{ID: 45, CompanyID: 3, FirstName: "Fatima", LastName: "Lind", Email: "fatima.lind@globex.example", Position: "Site Lead", HiredAt: hired(2017, time.October, 2), Active: true, Timestamps: ts},

		&models.Document{ID: 1, CompanyID: 1, EmployeeID: 40, Title: "Employment contract", ObjectKey: "contracts/40.pdf", ContentType: "application/pdf", SizeBytes: 48213, Timestamps: ts},
		&models.Document{ID: 2, CompanyID: 2, EmployeeID: 42, Title: "Nursing licence", ObjectKey: "licences/42.pdf", ContentType: "application/pdf", SizeBytes: 120551, Timestamps: ts},
		&models.Document{ID: 3, CompanyID: 3, Title: "Safety handbook", ObjectKey: "handbooks/globex-safety.pdf", ContentType: "application/pdf", SizeBytes: 2048876, Timestamps: ts},
	}
}
