package apps

import (
	"time"

	"pricelab/ml"
	"pricelab/pipeline"
)

var houseNumeric = []string{
	"longitude",
	"latitude",
	"housing_median_age",
	"total_rooms",
	"total_bedrooms",
	"population",
	"households",
	"median_income",
}

var oceanProximity = []string{"<1H OCEAN", "INLAND", "ISLAND", "NEAR BAY", "NEAR OCEAN"}

func newHouse() *App {
	inputs := make([]ml.Field, 0, len(houseNumeric)+1)
	for _, name := range houseNumeric {
		inputs = append(inputs, ml.Field{Name: name, Kind: ml.Numeric})
	}
	inputs = append(inputs, ml.Field{Name: "ocean_proximity", Kind: ml.Categorical})

	return &App{
		Name:        "house",
		Title:       "California House Price Estimator",
		Description: "Median house value of a California census block from its location, size and income.",
		Dataset:     "housing.csv",
		Target:      "median_house_value",
		Categorical: []string{"ocean_proximity"},
		Split:       SplitRandom,
		ModelType:   ml.ModelTypeLinear,
		Params:      ml.Params{Trees: 100, Seed: 42},
		TestRatio:   0.2,
		Money:       mustMoney("USD", "$"),
		Inputs:      inputs,
		form: []FormField{
			{Name: "longitude", Label: "Longitude", Type: InputNumber, Default: "-122.23", Step: "0.01"},
			{Name: "latitude", Label: "Latitude", Type: InputNumber, Default: "37.88", Step: "0.01"},
			{Name: "housing_median_age", Label: "Housing Median Age", Type: InputNumber, Default: "41.0", Step: "any"},
			{Name: "total_rooms", Label: "Total Rooms", Type: InputNumber, Default: "880.0", Step: "any"},
			{Name: "total_bedrooms", Label: "Total Bedrooms", Type: InputNumber, Default: "129.0", Step: "any"},
			{Name: "population", Label: "Population", Type: InputNumber, Default: "322.0", Step: "any"},
			{Name: "households", Label: "Households", Type: InputNumber, Default: "126.0", Step: "any"},
			{Name: "median_income", Label: "Median Income (Tens of Thousands)", Type: InputNumber, Default: "8.3", Step: "any"},
			{Name: "ocean_proximity", Label: "Ocean Proximity", Type: InputSelect, Options: oceanProximity},
		},
		prepare:  prepareHouse,
		toRecord: houseRecord,
	}
}

func prepareHouse(frame *pipeline.Frame, env *prepareEnv) (*pipeline.Frame, error) {
	columns := append(append([]string(nil), houseNumeric...), "median_house_value", "ocean_proximity")
	if err := frame.Keep(columns...); err != nil {
		return nil, err
	}
	if err := frame.FillNAMedian("total_bedrooms"); err != nil {
		return nil, err
	}

	return env.clean(frame,
		pipeline.NewNumericRule(append(houseNumeric, "median_house_value")...),
		pipeline.NewNonNegativeRule("housing_median_age", "total_rooms", "total_bedrooms", "population", "households", "median_income", "median_house_value"),
	), nil
}

func houseRecord(values map[string]string, _ time.Time, _ bool) (ml.Record, error) {
	numeric, err := numericInputs(values, houseNumeric...)
	if err != nil {
		return ml.Record{}, err
	}
	categorical, err := categoricalInputs(values, "ocean_proximity")
	if err != nil {
		return ml.Record{}, err
	}
	return ml.Record{Numeric: numeric, Categorical: categorical}, nil
}
