package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ultrashots/models"
)

type subscribersSeeder struct {
	f   *Fixtures
	now time.Time
}

func (subscribersSeeder) Name() string { return Subscribers }

func (s subscribersSeeder) Seed(ctx context.Context, db *gorm.DB) (Result, error) {
	var res Result
	sf := s.f.Subscribers
	rng := rand.New(rand.NewSource(sf.Seed))
	for i := 0; i < sf.Count; i++ {
		first := sf.FirstNames[rng.Intn(len(sf.FirstNames))]
		last := sf.LastNames[rng.Intn(len(sf.LastNames))]
		domain := sf.Domains[rng.Intn(len(sf.Domains))]
		source := sf.Sources[rng.Intn(len(sf.Sources))]
		joined := s.now.AddDate(0, 0, -rng.Intn(365))
		email := fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), i+1, domain)

		var sub models.Subscriber
		err := ensure(db, models.Subscriber{Email: email}, &sub, func() (models.Subscriber, error) {
			rec := models.Subscriber{
				Email:  email,
				Name:   first + " " + last,
				Token:  uuid.NewString(),
				Source: source,
				Status: models.SubscriberSubscribed,
			}
			switch {
			case i%10 == 9:
				left := joined.AddDate(0, 0, 30)
				rec.Status = models.SubscriberUnsubscribed
				rec.SubscribedAt = &joined
				rec.UnsubscribedAt = &left
			case i%7 == 6:
				rec.Status = models.SubscriberPending
			default:
				rec.SubscribedAt = &joined
			}
			return rec, nil
		}, &res)
		if err != nil {
			return res, fmt.Errorf("subscriber %s: %w", email, err)
		}
	}
	return res, nil
}
