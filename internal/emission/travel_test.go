package emission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateTravel_DomesticFlightWithRadiativeForcing(t *testing.T) {
	result, err := CalculateTravel(TravelInput{
		TravelType: "flight",
		DistanceKm: dec("1000"),
		IsDomestic: true,
	})
	assert.NoError(t, err)

	// 1000 km * 0.2443 kg/km * RF 1.9
	assert.Equal(t, "464.17", result.TotalKg.String())
	assert.Equal(t, "244.3", result.Breakdown["base_emissions_kg"].String())
}

func TestCalculateTravel_FlightClassFactors(t *testing.T) {
	economy, err := CalculateTravel(TravelInput{DistanceKm: dec("5000"), FlightClass: "economy"})
	assert.NoError(t, err)
	business, err := CalculateTravel(TravelInput{DistanceKm: dec("5000"), FlightClass: "business"})
	assert.NoError(t, err)

	assert.True(t, business.TotalKg.GreaterThan(economy.TotalKg))
	assert.Equal(t, "business", business.Factors["flight_class"])
}

func TestCalculateTravel_PassengerMultiplier(t *testing.T) {
	solo, _ := CalculateTravel(TravelInput{TravelType: "rail", DistanceKm: dec("100")})
	group, _ := CalculateTravel(TravelInput{TravelType: "rail", DistanceKm: dec("100"), PassengerCount: dec("3")})

	assert.True(t, group.TotalKg.Equal(solo.TotalKg.Mul(dec("3"))))
}

func TestCalculateTravel_RoadUnknownVehicleFallsBack(t *testing.T) {
	result, err := CalculateTravel(TravelInput{
		TravelType:  "road",
		DistanceKm:  dec("100"),
		VehicleType: "hovercraft",
	})
	assert.NoError(t, err)
	assert.Equal(t, "car_petrol_medium", result.Factors["vehicle_type"])
	assert.Equal(t, "17.43", result.TotalKg.String())
}

func TestCalculateTravel_AccommodationByCountry(t *testing.T) {
	uk, _ := CalculateTravel(TravelInput{TravelType: "accommodation", Nights: dec("3"), CountryCode: "GB"})
	world, _ := CalculateTravel(TravelInput{TravelType: "accommodation", Nights: dec("3")})

	assert.Equal(t, "31.2", uk.TotalKg.String())
	assert.Equal(t, "60", world.TotalKg.String())
}

func TestCalculateTravel_UnknownType(t *testing.T) {
	_, err := CalculateTravel(TravelInput{TravelType: "teleport"})
	assert.ErrorIs(t, err, ErrUnknownTravelType)
}
