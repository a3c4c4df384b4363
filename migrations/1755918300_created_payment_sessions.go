package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payment_sessions")

		collection.Fields.Add(
			&core.TextField{
				Name:     "session_id",
				Required: true,
			},
			&core.TextField{
				Name:     "booking_id",
				Required: true,
			},
			&core.TextField{
				Name: "redirect_url",
			},
			&core.BoolField{
				Name: "consumed",
			},
			&core.TextField{
				Name: "result_status",
			},
			&core.TextField{
				Name: "booking_reference",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_payment_sessions_session_id", true, "session_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payment_sessions")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
