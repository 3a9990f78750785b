package seed

import (
	"context"
	"fmt"
	"math/rand"
	"path"

	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/media"
)

// logosSeeder creates logo downloads. With a media store it also writes placeholder images.
type logosSeeder struct {
	f     *Fixtures
	store *media.Store
}

func (logosSeeder) Name() string { return Logos }

func (s logosSeeder) Seed(ctx context.Context, db *gorm.DB) (Result, error) {
	var res Result
	var customers []models.Customer
	if err := db.Order("id").Find(&customers).Error; err != nil {
		return res, err
	}

	rng := rand.New(rand.NewSource(int64(len(s.f.Logos))))
	for i, name := range s.f.Logos {
		file := models.Slugify(name) + ".png"
		downloads := int64(rng.Intn(500))
		var customerID *uint
		if len(customers) > 0 && i%4 != 3 {
			id := customers[i%len(customers)].ID
			customerID = &id
		}

		var logo models.Logo
		err := ensure(db, models.Logo{FileName: file}, &logo, func() (models.Logo, error) {
			rec := models.Logo{
				CustomerID:  customerID,
				Name:        name,
				FileName:    file,
				StorePath:   path.Join("logos", file),
				ContentType: "image/png",
				Downloads:   downloads,
			}
			if s.store != nil {
				st, err := s.store.Placeholder(rec.StorePath, i)
				if err != nil {
					return rec, err
				}
				rec.ThumbPath = st.ThumbPath
			}
			return rec, nil
		}, &res)
		if err != nil {
			return res, fmt.Errorf("logo %s: %w", file, err)
		}
	}
	return res, nil
}
