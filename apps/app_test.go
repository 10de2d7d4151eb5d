package apps

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricelab/config"
	"pricelab/ml"
)

func TestCarAge(t *testing.T) {
	tests := []struct {
		year int
		now  time.Time
		want int
	}{
		{2015, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 9},
		{2024, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 0},
		{1990, fixedNow, 34},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CarAge(tt.year, tt.now))
	}
}

func TestBrand(t *testing.T) {
	assert.Equal(t, "Maruti", Brand("Maruti Swift Dzire VDI"))
	assert.Equal(t, "BMW", Brand("  BMW  X1"))
	assert.Equal(t, "", Brand(""))
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		app, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, app.Name)
	}
	_, err := Lookup("boat")
	assert.ErrorIs(t, err, ErrUnknownApp)

	a, _ := Lookup("car")
	a.Params.Trees = 1
	b, _ := Lookup("car")
	assert.Equal(t, 200, b.Params.Trees)
}

func TestCarRecord(t *testing.T) {
	app, err := Lookup("car")
	require.NoError(t, err)

	values := map[string]string{
		"Year":         "2015",
		"Kms_Driven":   "50000",
		"Fuel_Type":    "Diesel",
		"Transmission": "Manual",
		"Brand":        "Maruti",
		"Seller_Type":  "Dealer",
		"Owner":        "Second Owner",
	}
	record, err := app.Record(values, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 9.0, record.Numeric["Car_Age"])
	assert.Equal(t, 2.0, record.Numeric["Owner"])
	assert.Equal(t, 50000.0, record.Numeric["Kms_Driven"])
	assert.Equal(t, "Maruti", record.Categorical["Brand"])
	assert.NotContains(t, record.Categorical, "Owner")

	values["Owner"] = "Fifth Owner"
	record, err = app.Record(values, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1.0, record.Numeric["Owner"])

	app.Strict = true
	_, err = app.Record(values, fixedNow)
	assert.ErrorIs(t, err, ml.ErrUnknownCategory)

	values["Owner"] = "First Owner"
	values["Year"] = "2031"
	_, err = app.Record(values, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordRejectsBadNumbers(t *testing.T) {
	app, err := Lookup("stock")
	require.NoError(t, err)

	_, err = app.Record(map[string]string{"Open": "1", "High": "2", "Low": "abc", "Close": "1", "Volume": "1"}, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = app.Record(map[string]string{"Open": "1"}, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidInput)

	record, err := app.Record(map[string]string{"Open": "1", "High": "2", "Low": "0.5", "Close": "1.5", "Volume": "1,000"}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, record.Numeric["Volume"])
}

func TestCarFormUsesSchemaBrands(t *testing.T) {
	app, err := Lookup("car")
	require.NoError(t, err)
	schema := &ml.Schema{
		Features:   []string{"Kms_Driven", "Brand_Maruti", "Brand_Hyundai"},
		Categories: map[string][]string{"Brand": {"Maruti", "BMW", "Hyundai"}},
	}

	form := app.Form(fixedNow, schema, nil)
	byName := make(map[string]FormField)
	for _, f := range form {
		byName[f.Name] = f
	}
	assert.Equal(t, "2024", byName["Year"].Max)
	assert.Equal(t, "2015", byName["Year"].Default)
	assert.Equal(t, []string{"BMW", "Hyundai", "Maruti"}, byName["Brand"].Options)
	assert.Equal(t, "BMW", byName["Brand"].Default)
	assert.Equal(t, "Petrol", byName["Fuel_Type"].Default)

	// older schemas without categories fall back to the slot names
	form = app.Form(fixedNow, &ml.Schema{Features: []string{"Brand_Tata", "Brand_Honda"}}, nil)
	for _, f := range form {
		if f.Name == "Brand" {
			assert.Equal(t, []string{"Honda", "Tata"}, f.Options)
		}
	}
}

func TestWithConfig(t *testing.T) {
	seed := int64(7)
	app, err := Lookup("car")
	require.NoError(t, err)

	out := app.WithConfig(config.AppConfig{
		Dataset:   "/data/cars.csv",
		ModelType: "linear",
		Trees:     50,
		Seed:      &seed,
		TestRatio: 0.3,
		Strict:    true,
		Currency:  "EUR",
	})
	assert.Equal(t, "/data/cars.csv", out.DatasetPath("dataset"))
	assert.Equal(t, "linear", out.ModelType)
	assert.Equal(t, 50, out.Params.Trees)
	assert.Equal(t, int64(7), out.Params.Seed)
	assert.Equal(t, 0.3, out.TestRatio)
	assert.True(t, out.Strict)
	assert.Equal(t, "EUR", out.Money.Code)

	assert.Equal(t, ml.ModelTypeRandomForest, app.ModelType)
	assert.Equal(t, filepath.Join("dataset", "cardekho.csv"), app.DatasetPath("dataset"))

	all := All(config.Default())
	require.Len(t, all, 3)
	assert.Equal(t, "house", all[0].Name)
}
