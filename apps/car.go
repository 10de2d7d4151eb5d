package apps

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pricelab/ml"
	"pricelab/pipeline"
)

var carColumns = map[string]string{
	"year":          "Year",
	"selling_price": "Selling_Price",
	"present_price": "Present_Price",
	"km_driven":     "Kms_Driven",
	"fuel":          "Fuel_Type",
	"seller_type":   "Seller_Type",
	"transmission":  "Transmission",
	"owner":         "Owner",
	"name":          "Car_Name",
}

// OwnerRanks orders the owner history labels. Labels not listed rank as a
// first owner.
var OwnerRanks = map[string]int{
	"Test Drive Car":       0,
	"First Owner":          1,
	"Second Owner":         2,
	"Third Owner":          3,
	"Fourth & Above Owner": 4,
}

const ownerFallback = 1

var carCategorical = []string{"Fuel_Type", "Seller_Type", "Transmission", "Brand"}

// CarAge is the age in whole years of a car bought in purchaseYear.
func CarAge(purchaseYear int, now time.Time) int {
	return now.Year() - purchaseYear
}

// Brand is the first whitespace separated token of a car name.
func Brand(carName string) string {
	fields := strings.Fields(carName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func newCar() *App {
	return &App{
		Name:        "car",
		Title:       "Used Car Price Estimator",
		Description: "Estimated selling price of a used car from its age, usage and brand.",
		Dataset:     "cardekho.csv",
		Target:      "Selling_Price",
		Categorical: carCategorical,
		Split:       SplitRandom,
		ModelType:   ml.ModelTypeRandomForest,
		Params:      ml.Params{Trees: 200, Seed: 42},
		TestRatio:   0.2,
		Money:       mustMoney("INR", "₹"),
		Inputs: []ml.Field{
			{Name: "Kms_Driven", Kind: ml.Numeric},
			{Name: "Car_Age", Kind: ml.Numeric},
			{Name: "Owner", Kind: ml.Numeric},
			{Name: "Fuel_Type", Kind: ml.Categorical},
			{Name: "Seller_Type", Kind: ml.Categorical},
			{Name: "Transmission", Kind: ml.Categorical},
			{Name: "Brand", Kind: ml.Categorical},
		},
		form: []FormField{
			{Name: "Year", Label: "Year of Purchase", Type: InputNumber, Default: "2015", Min: "1990", Max: maxCurrentYear, Step: "1"},
			{Name: "Kms_Driven", Label: "Kilometers Driven", Type: InputNumber, Default: "50000", Min: "0", Step: "1"},
			{Name: "Fuel_Type", Label: "Fuel Type", Type: InputSelect, Options: []string{"Petrol", "Diesel", "CNG", "LPG", "Electric"}},
			{Name: "Transmission", Label: "Transmission", Type: InputRadio, Options: []string{"Manual", "Automatic"}},
			{Name: "Brand", Label: "Car Brand", Type: InputSelect, FromCategory: "Brand"},
			{Name: "Seller_Type", Label: "Seller Type", Type: InputSelect, Options: []string{"Dealer", "Individual", "Trustmark Dealer"}},
			{Name: "Owner", Label: "Owner History", Type: InputSelect, Options: []string{"First Owner", "Second Owner", "Third Owner", "Fourth & Above Owner", "Test Drive Car"}},
		},
		prepare:  prepareCar,
		toRecord: carRecord,
		decorate: func(app *App, value float64, _ map[string]string) Outcome {
			return Outcome{
				Value:     value,
				Formatted: app.Money.Format(value),
				Label:     app.Money.Label(),
				Note:      "This is an estimate based on market data.",
			}
		},
	}
}

func prepareCar(frame *pipeline.Frame, env *prepareEnv) (*pipeline.Frame, error) {
	if err := frame.Rename(carColumns); err != nil {
		return nil, err
	}
	for _, col := range []string{"Year", "Selling_Price", "Kms_Driven", "Car_Name", "Owner"} {
		if !frame.Has(col) {
			return nil, fmt.Errorf("car dataset: %s: %w", col, pipeline.ErrColumnNotFound)
		}
	}

	numeric := []string{"Year", "Selling_Price", "Kms_Driven"}
	if frame.Has("Present_Price") {
		numeric = append(numeric, "Present_Price")
	}
	frame = env.clean(frame,
		pipeline.NewNumericRule(numeric...),
		pipeline.NewNonNegativeRule(numeric...),
	)

	now := env.now
	if err := frame.Derive("Car_Age", func(row pipeline.Row) (string, error) {
		year, err := row.Float("Year")
		if err != nil {
			return "", err
		}
		return strconv.Itoa(CarAge(int(year), now)), nil
	}); err != nil {
		return nil, err
	}
	if err := frame.Derive("Brand", func(row pipeline.Row) (string, error) {
		return Brand(row.Get("Car_Name")), nil
	}); err != nil {
		return nil, err
	}
	if err := frame.Drop("Year", "Car_Name"); err != nil {
		return nil, err
	}
	if err := frame.MapOrdinal("Owner", OwnerRanks, ownerFallback); err != nil {
		return nil, err
	}

	keep := []string{"Selling_Price", "Present_Price", "Kms_Driven", "Owner", "Car_Age"}
	for _, col := range carCategorical {
		if frame.Has(col) {
			keep = append(keep, col)
		}
	}
	if err := frame.Keep(keep...); err != nil {
		return nil, err
	}
	return frame, nil
}

func carRecord(values map[string]string, now time.Time, strict bool) (ml.Record, error) {
	numeric, err := numericInputs(values, "Year", "Kms_Driven")
	if err != nil {
		return ml.Record{}, err
	}
	categorical, err := categoricalInputs(values, "Fuel_Type", "Seller_Type", "Transmission", "Brand", "Owner")
	if err != nil {
		return ml.Record{}, err
	}

	year := int(numeric["Year"])
	if year > now.Year() {
		return ml.Record{}, fmt.Errorf("%w: Year %d is in the future", ErrInvalidInput, year)
	}
	owner, ok := OwnerRanks[categorical["Owner"]]
	if !ok {
		if strict {
			return ml.Record{}, fmt.Errorf("%w: Owner=%q", ml.ErrUnknownCategory, categorical["Owner"])
		}
		owner = ownerFallback
	}
	delete(categorical, "Owner")

	return ml.Record{
		Numeric: map[string]float64{
			"Kms_Driven": numeric["Kms_Driven"],
			"Car_Age":    float64(CarAge(year, now)),
			"Owner":      float64(owner),
		},
		Categorical: categorical,
	}, nil
}
