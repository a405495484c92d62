package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
)

var demoCatalog = []catalog.ProductInput{
	{Name: "Butter Croissant", Description: "Laminated dough, French butter", Price: decimal.RequireFromString("3.50"), Category: "Pastries", Stock: 40, Featured: true},
	{Name: "Pain au Chocolat", Description: "Two batons of dark chocolate", Price: decimal.RequireFromString("3.90"), Category: "Pastries", Stock: 30, Featured: true},
	{Name: "Almond Croissant", Description: "Twice baked with frangipane", Price: decimal.RequireFromString("4.20"), Category: "Pastries", Stock: 20},
	{Name: "Sourdough Loaf", Description: "48 hour fermentation", Price: decimal.RequireFromString("6.80"), Category: "Bread", Stock: 15, Featured: true},
	{Name: "Rye Loaf", Description: "Dark rye with caraway", Price: decimal.RequireFromString("5.60"), Category: "Bread", Stock: 12},
	{Name: "Baguette", Description: "Baked every morning", Price: decimal.RequireFromString("2.20"), Category: "Bread", Stock: 50},
	{Name: "Cinnamon Bun", Description: "Cardamom dough, cinnamon sugar", Price: decimal.RequireFromString("3.20"), Category: "Buns", Stock: 25},
	{Name: "Lemon Tart", Description: "Shortcrust, lemon curd", Price: decimal.RequireFromString("4.80"), Category: "Cakes", Stock: 10},
}

// seedDemoCatalog заполняет пустой каталог демонстрационными товарами.
func seedDemoCatalog(ctx context.Context, svc *catalog.Service, logger *log.Entry) error {
	count, err := svc.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.WithField("products", count).Debug("catalog is not empty, demo seed skipped")
		return nil
	}

	var errs []error
	for _, in := range demoCatalog {
		if _, err := svc.Create(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.WithField("products", len(demoCatalog)).Info("demo catalog seeded")
	return nil
}
