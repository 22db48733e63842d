// Package modelutil manipulates Model and Horizon objects for study runs:
// serial date conversion, horizon partitioning and solver assignment.
package modelutil

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"plexedit/plexos/model"
)

// Steps per day for each Chrono Step Type, from the vendor documentation.
// Index is the step type: 0 minute, 1 hour, 2 day, 3 week.
var chronoUnitsPerDay = []float64{1440.0, 24.0, 1.0, 1.0 / 7.0}

// plexEpoch is day zero of the serial date scheme used in horizon
// attributes.
var plexEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// PlexToTime converts a serial date to a time. Datemode selects the
// 1900-based (0) or 1904-based (1) variant.
func PlexToTime(plexDate float64, datemode int) time.Time {
	days := plexDate + 1462.0*float64(datemode)
	return plexEpoch.Add(time.Duration(days * 24 * float64(time.Hour)))
}

// TimeToPlex converts a time to a whole-day serial date.
func TimeToPlex(t time.Time, datemode int) float64 {
	days := math.Floor(t.Sub(plexEpoch).Hours() / 24)
	return days - 1462.0*float64(datemode)
}

// StepsPerDay computes how many chronological steps one day spans for the
// given horizon attributes. Absent attributes take the vendor defaults of
// daily steps taken one at a time.
func StepsPerDay(attributes map[string]string) (float64, error) {
	stepType := 2
	if raw, ok := attributes["Chrono Step Type"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid Chrono Step Type %q: %w", raw, err)
		}
		stepType = parsed
	}
	if stepType < 0 || stepType >= len(chronoUnitsPerDay) {
		return 0, fmt.Errorf("Chrono Step Type %d out of range", stepType)
	}
	atATime := 1
	if raw, ok := attributes["Chrono At a Time"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid Chrono At a Time %q: %w", raw, err)
		}
		atATime = parsed
	}
	return chronoUnitsPerDay[stepType] / float64(atATime), nil
}

// SplitOptions controls SplitHorizon beyond the partition count.
type SplitOptions struct {
	// StartDayOverlap starts each partition after the first this many days
	// before its boundary.
	StartDayOverlap int
	// IndexWriter, when set, receives a csv header followed by one line per
	// partition with the new model name and its start and end dates.
	IndexWriter io.Writer
	// SplitType recomputes step counts in a different step type to avoid
	// fractional dates. Nil keeps the horizon's own step type.
	SplitType *int
	// PlanningStepType, when nonzero, also sets a planning horizon of that
	// step type encompassing each partition.
	PlanningStepType int
}

// SplitHorizon partitions the horizon of the named model into numPartitions
// new model/horizon pairs. Each new horizon covers an equal share of the
// original step count, the last one absorbing rounding remainder.
func SplitHorizon(m *model.Model, modelName string, numPartitions int, opts SplitOptions) error {
	if numPartitions > 1000 {
		return fmt.Errorf("too many partitions: must be at most 1000")
	}
	// Partition names append 17 characters to the base name.
	if len(modelName)+17 > 50 {
		return fmt.Errorf("model name %q too long: partitioned names would exceed the 50 character limit", modelName)
	}

	modelClass, err := m.Class("Model")
	if err != nil {
		return err
	}
	base, err := modelClass.Object(modelName)
	if err != nil {
		return err
	}
	horizons, err := base.Children("Horizon")
	if err != nil {
		return err
	}
	if len(horizons) == 0 {
		return fmt.Errorf("model %q has no horizon child", modelName)
	}
	horizon := horizons[0]
	attributes := horizon.Attributes()

	stepCount, err := floatAttribute(attributes, "Chrono Step Count")
	if err != nil {
		return err
	}
	dateFrom, err := floatAttribute(attributes, "Chrono Date From")
	if err != nil {
		return err
	}

	stepRatio := 1.0
	var stepsPerDay float64
	if opts.SplitType == nil {
		stepsPerDay, err = StepsPerDay(attributes)
		if err != nil {
			return err
		}
	} else {
		stepType, err := floatAttribute(attributes, "Chrono Step Type")
		if err != nil {
			return err
		}
		timespan := stepCount / chronoUnitsPerDay[int(stepType)]
		slog.Info("recomputing step count", "timespan_days", timespan, "split_type", *opts.SplitType)
		stepRatio = chronoUnitsPerDay[int(stepType)] / chronoUnitsPerDay[*opts.SplitType]
		stepCount = timespan * chronoUnitsPerDay[*opts.SplitType]
		splitAttributes := map[string]string{
			"Chrono Step Type": strconv.Itoa(*opts.SplitType),
		}
		if atATime, ok := attributes["Chrono At a Time"]; ok {
			splitAttributes["Chrono At a Time"] = atATime
		}
		stepsPerDay, err = StepsPerDay(splitAttributes)
		if err != nil {
			return err
		}
	}

	partitionSteps := math.Round(stepCount / float64(numPartitions))
	overlap := float64(opts.StartDayOverlap)

	if opts.IndexWriter != nil {
		fmt.Fprintf(opts.IndexWriter, "%s,%s,%s\n",
			center("New Model", len(modelName)+17), center("Start", 19), center("End", 19))
	}

	for i := 1; i <= numPartitions; i++ {
		name := fmt.Sprintf("%s_%03dP_OLd%03d_%03d", modelName, numPartitions, opts.StartDayOverlap, i)
		newModel, err := base.Copy(name)
		if err != nil {
			return err
		}
		newHorizon, err := horizon.Copy(name)
		if err != nil {
			return err
		}
		if err := newModel.SetChildren([]*model.Object{newHorizon}, true); err != nil {
			return err
		}

		notFirst := 0.0
		if i != 1 {
			notFirst = 1.0
		}
		index := float64(i - 1)
		overlapSteps := stepsPerDay * overlap * notFirst

		var newSteps float64
		if i < numPartitions {
			newSteps = partitionSteps + overlapSteps
		} else {
			newSteps = stepCount - partitionSteps*index + overlapSteps
		}
		newFrom := dateFrom + partitionSteps*index/stepsPerDay - overlap*notFirst

		if err := newHorizon.SetAttribute("Chrono Step Count", formatFloat(newSteps*stepRatio)); err != nil {
			return err
		}
		if err := newHorizon.SetAttribute("Chrono Date From", formatFloat(newFrom)); err != nil {
			return err
		}
		slog.Info("split horizon partition", "name", name, "steps", newSteps*stepRatio, "date_from", newFrom)

		if opts.IndexWriter != nil {
			start := PlexToTime(newFrom, 0)
			end := PlexToTime(newFrom+newSteps/stepsPerDay, 0)
			fmt.Fprintf(opts.IndexWriter, "%s,%s,%s\n", name,
				start.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05"))
		}
		if opts.PlanningStepType != 0 {
			if err := SetPlanningHorizon(newHorizon, opts.PlanningStepType); err != nil {
				return err
			}
		}
	}

	// Copying horizons attached them to the base model too; restore its
	// original single horizon child.
	return base.SetChildren([]*model.Object{horizon}, true)
}

// SetSolver makes the named Performance object the solver of every model,
// replacing any Performance child a model already has.
func SetSolver(m *model.Model, solverName string) error {
	perfClass, err := m.Class("Performance")
	if err != nil {
		return err
	}
	solver, err := perfClass.Object(solverName)
	if err != nil {
		return err
	}
	modelClass, err := m.Class("Model")
	if err != nil {
		return err
	}
	names, err := modelClass.Objects()
	if err != nil {
		return err
	}
	for _, name := range names {
		obj, err := modelClass.Object(name)
		if err != nil {
			return err
		}
		if err := obj.SetChildren([]*model.Object{solver}, true); err != nil {
			return err
		}
	}
	return nil
}

// SetPlanningHorizon sets the planning horizon attributes to cover every
// period containing the chronological schedule. Daily (1) and monthly (3)
// step types are supported.
func SetPlanningHorizon(horizon *model.Object, stepType int) error {
	attributes := horizon.Attributes()
	dateFrom, err := floatAttribute(attributes, "Chrono Date From")
	if err != nil {
		return err
	}
	stepCount, err := floatAttribute(attributes, "Chrono Step Count")
	if err != nil {
		return err
	}
	chronoType, err := floatAttribute(attributes, "Chrono Step Type")
	if err != nil {
		return err
	}

	start := PlexToTime(dateFrom, 0)
	end := PlexToTime(dateFrom+stepCount/chronoUnitsPerDay[int(chronoType)], 0)

	var planFrom float64
	var planSteps int
	switch stepType {
	case 1:
		planFrom = dateFrom
		planSteps = int(end.Sub(start).Hours()/24) + 1
	case 3:
		monthStart := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		if end.Year() > start.Year() {
			planSteps = 13 - int(start.Month()) + int(end.Month())
		} else {
			planSteps = int(end.Month()) - int(start.Month()) + 1
		}
		planFrom = TimeToPlex(monthStart, 0)
	default:
		return fmt.Errorf("unsupported planning step type %d: only daily (1) and monthly (3) are supported", stepType)
	}

	if err := horizon.SetAttribute("Date From", formatFloat(planFrom)); err != nil {
		return err
	}
	if err := horizon.SetAttribute("Step Count", strconv.Itoa(planSteps)); err != nil {
		return err
	}
	return horizon.SetAttribute("Step Type", strconv.Itoa(stepType))
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}

func floatAttribute(attributes map[string]string, name string) (float64, error) {
	raw, ok := attributes[name]
	if !ok {
		return 0, fmt.Errorf("horizon has no %v attribute", name)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %v %q: %w", name, raw, err)
	}
	return value, nil
}

// formatFloat writes whole values without a decimal point, matching how the
// vendor tooling stores attribute numbers.
func formatFloat(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
