package ml

import "math"

type IModelCost interface {
	Cost(predicted, target float64) float64
	CostPrime(predicted, target float64) float64
}

type MSECost struct{}

func (*MSECost) Cost(predicted, target float64) float64 {
	var x = predicted - target
	return x * x
}

func (*MSECost) CostPrime(predicted, target float64) float64 {
	return 2 * (predicted - target)
}

// DefaultCloseGameK is the sharpness of the close-game emphasis.
const DefaultCloseGameK = 10

// WeightedMSECost scales the squared error by 2*exp(-|K*target|)+1,
// so positions with a near-zero label weigh up to three times more
// than clearly decided ones.
type WeightedMSECost struct {
	K float64
}

func (c *WeightedMSECost) Weight(target float64) float64 {
	return 2*math.Exp(-math.Abs(c.K*target)) + 1
}

func (c *WeightedMSECost) Cost(predicted, target float64) float64 {
	var x = predicted - target
	return c.Weight(target) * x * x
}

func (c *WeightedMSECost) CostPrime(predicted, target float64) float64 {
	return 2 * c.Weight(target) * (predicted - target)
}
