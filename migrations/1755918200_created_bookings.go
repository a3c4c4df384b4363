package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("bookings")

		collection.Fields.Add(
			&core.TextField{
				Name:     "user_email",
				Required: true,
			},
			&core.TextField{
				Name:     "vendor_email",
				Required: true,
			},
			&core.TextField{
				Name:     "ticket_id",
				Required: true,
			},
			&core.NumberField{
				Name:     "quantity",
				Min:      types.Pointer(1.0),
				OnlyInt:  true,
				Required: true,
			},
			&core.NumberField{
				Name:     "unit_price",
				Required: true,
			},
			&core.NumberField{
				Name:     "total_price",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"pending", "accepted", "rejected", "paid", "cancelled"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.TextField{
				Name:     "booking_reference",
				Required: true,
			},
			&core.TextField{
				Name: "reservation_token",
			},
			&core.TextField{
				Name: "payment_session_id",
			},
			&core.DateField{
				Name: "payment_date",
			},
			&core.BoolField{
				Name: "needs_reconciliation",
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

		collection.AddIndex("idx_bookings_reference", true, "booking_reference", "")
		collection.AddIndex("idx_bookings_user_email", false, "user_email", "")
		collection.AddIndex("idx_bookings_vendor_email", false, "vendor_email", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
