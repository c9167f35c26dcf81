package emission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TravelInput describes a business travel emission event.
type TravelInput struct {
	TravelType     string
	DistanceKm     decimal.Decimal
	Nights         decimal.Decimal
	PassengerCount decimal.Decimal
	FlightClass    string
	IsDomestic     bool
	RailType       string
	VehicleType    string
	CountryCode    string
}

var ErrUnknownTravelType = errors.New("unknown travel type")

// CalculateTravel computes CO2e for flights, rail, road and accommodation
// using DEFRA distance-based factors. Flight totals carry the radiative
// forcing uplift.
func CalculateTravel(in TravelInput) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(in.TravelType)) {
	case "", "flight":
		return travelFlight(in), nil
	case "rail":
		return travelRail(in), nil
	case "road":
		return travelRoad(in), nil
	case "accommodation":
		return travelAccommodation(in), nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTravelType, in.TravelType)
	}
}

func travelFlight(in TravelInput) Result {
	passengers := in.PassengerCount
	if !passengers.IsPositive() {
		passengers = decimal.NewFromInt(1)
	}
	flightClass := strings.ToLower(strings.TrimSpace(in.FlightClass))

	var factorKey string
	if in.IsDomestic {
		factorKey = "flight_domestic"
	} else {
		switch flightClass {
		case "premium_economy":
			factorKey = "flight_intl_premium_economy"
		case "business":
			factorKey = "flight_intl_business"
		case "first":
			factorKey = "flight_intl_first"
		default:
			factorKey = "flight_intl_economy"
			flightClass = "economy"
		}
	}

	factor := travelFactorsKgPerKm[factorKey]
	baseKg := in.DistanceKm.Mul(factor).Mul(passengers)
	totalKg := baseKg.Mul(flightRadiativeForcing)

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"distance_km":                  in.DistanceKm,
			"passenger_count":              passengers,
			"base_emissions_kg":            baseKg,
			"radiative_forcing_multiplier": flightRadiativeForcing,
			"emissions_with_rf_kg":         totalKg,
		},
		Factors: map[string]any{
			"travel_type":               "flight",
			"flight_class":              flightClass,
			"is_domestic":               in.IsDomestic,
			"emission_factor_kg_per_km": factor.String(),
			"source":                    "DEFRA 2024",
		},
	}
}

func travelRail(in TravelInput) Result {
	passengers := in.PassengerCount
	if !passengers.IsPositive() {
		passengers = decimal.NewFromInt(1)
	}
	railType := strings.ToLower(strings.TrimSpace(in.RailType))
	factorKey := "rail_national"
	if railType == "international" {
		factorKey = "rail_international"
	} else {
		railType = "national"
	}

	factor := travelFactorsKgPerKm[factorKey]
	totalKg := in.DistanceKm.Mul(factor).Mul(passengers)

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"distance_km":     in.DistanceKm,
			"passenger_count": passengers,
		},
		Factors: map[string]any{
			"travel_type":               "rail",
			"rail_type":                 railType,
			"emission_factor_kg_per_km": factor.String(),
			"source":                    "DEFRA 2024",
		},
	}
}

func travelRoad(in TravelInput) Result {
	vehicleType := strings.ToLower(strings.TrimSpace(in.VehicleType))
	factor, ok := travelFactorsKgPerKm[vehicleType]
	if !ok {
		vehicleType = "car_petrol_medium"
		factor = travelFactorsKgPerKm[vehicleType]
	}

	totalKg := in.DistanceKm.Mul(factor)

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"distance_km": in.DistanceKm,
		},
		Factors: map[string]any{
			"travel_type":               "road",
			"vehicle_type":              vehicleType,
			"emission_factor_kg_per_km": factor.String(),
			"source":                    "DEFRA 2024",
		},
	}
}

func travelAccommodation(in TravelInput) Result {
	country := strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if country == "" {
		country = "WORLD"
	}
	factorKey := "hotel_night_average"
	if country == "GB" {
		factorKey = "hotel_night_uk"
	}
	factor := travelFactorsKgPerKm[factorKey]
	totalKg := in.Nights.Mul(factor)

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"nights": in.Nights,
		},
		Factors: map[string]any{
			"travel_type":                  "accommodation",
			"country_code":                 country,
			"emission_factor_kg_per_night": factor.String(),
			"source":                       "DEFRA 2024",
		},
	}
}
