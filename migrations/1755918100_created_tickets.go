package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{
				Name:     "vendor_email",
				Required: true,
			},
			&core.TextField{
				Name:     "title",
				Required: true,
			},
			&core.TextField{
				Name:     "from_location",
				Required: true,
			},
			&core.TextField{
				Name:     "to_location",
				Required: true,
			},
			&core.TextField{
				Name: "transport_type",
			},
			&core.NumberField{
				Name:     "price",
				Min:      types.Pointer(0.0),
				Required: true,
			},
			&core.NumberField{
				Name:    "available_quantity",
				Min:     types.Pointer(0.0),
				OnlyInt: true,
			},
			&core.DateField{
				Name:     "departure_at",
				Required: true,
			},
			&core.SelectField{
				Name:      "verification_status",
				Values:    []string{"pending", "approved", "rejected"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.BoolField{
				Name: "is_advertised",
			},
			&core.JSONField{
				Name: "perks",
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

		collection.AddIndex("idx_tickets_vendor_email", false, "vendor_email", "")
		collection.AddIndex("idx_tickets_verification", false, "verification_status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
