package genconf

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/Knetic/govaluate.v3"

	"github.com/sigreer/zman/internal/fault"
)

const mib = 1 << 20

// literalSize matches "512M", "1.5G", "2GiB", "4096K".
var literalSize = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([KMGTP])(?:i?B)?$`)

var sizeFunctions = map[string]govaluate.ExpressionFunction{
	"min": func(args ...interface{}) (interface{}, error) { return fold(args, math.Min) },
	"max": func(args ...interface{}) (interface{}, error) { return fold(args, math.Max) },
}

func fold(args []interface{}, f func(a, b float64) float64) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("min/max need at least one argument")
	}
	acc, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("non-numeric argument %v", args[0])
	}
	for _, a := range args[1:] {
		v, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("non-numeric argument %v", a)
		}
		acc = f(acc, v)
	}
	return acc, nil
}

// EvaluateSize turns a zram-size value into bytes for a host with ramBytes
// of memory.
//
// Literal sizes with a unit suffix are binary ("512M" is 512 MiB). Anything
// else is a generator formula such as "min(ram / 2, 4096)", where ram and the
// result are in MiB.
func EvaluateSize(expr string, ramBytes uint64) (uint64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fault.Validation("empty size")
	}
	if !sizePattern.MatchString(expr) {
		return 0, fault.Validation("invalid %s format: %q", KeySize, expr)
	}

	if m := literalSize.FindStringSubmatch(expr); m != nil {
		n, err := humanize.ParseBytes(m[1] + strings.ToUpper(m[2]) + "iB")
		if err != nil {
			return 0, fault.Validation("invalid size %q: %v", expr, err)
		}
		if n == 0 {
			return 0, fault.Validation("size %q evaluates to zero", expr)
		}
		return n, nil
	}

	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, sizeFunctions)
	if err != nil {
		return 0, fault.Validation("invalid size formula %q: %v", expr, err)
	}
	res, err := e.Evaluate(map[string]interface{}{"ram": float64(ramBytes) / mib})
	if err != nil {
		return 0, fault.Validation("cannot evaluate size formula %q: %v", expr, err)
	}
	v, ok := res.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fault.Validation("size formula %q evaluates to %v", expr, res)
	}
	return uint64(v * mib), nil
}
