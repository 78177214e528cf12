package loader

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Reserved descriptor keys. Every other key is a benchmark variable.
const (
	keyName                  = "name"
	keyDataSource            = "datasource"
	keyQueryNames            = "query-names"
	keyRuns                  = "runs"
	keyPrewarmRuns           = "prewarm-runs"
	keyConcurrency           = "concurrency"
	keyThroughputTest        = "throughput-test"
	keyFrequency             = "frequency"
	keyBeforeBenchmarkMacros = "before-benchmark"
	keyAfterBenchmarkMacros  = "after-benchmark"
	keyBeforeExecutionMacros = "before-execution"
	keyAfterExecutionMacros  = "after-execution"
	keyVariables             = "variables"
)

// Descriptor defaults.
const (
	DefaultRuns        = 3
	DefaultPrewarmRuns = 2
	DefaultConcurrency = 1
)

var reservedKeys = map[string]struct{}{
	keyName:                  {},
	keyDataSource:            {},
	keyQueryNames:            {},
	keyRuns:                  {},
	keyPrewarmRuns:           {},
	keyConcurrency:           {},
	keyThroughputTest:        {},
	keyFrequency:             {},
	keyBeforeBenchmarkMacros: {},
	keyAfterBenchmarkMacros:  {},
	keyBeforeExecutionMacros: {},
	keyAfterExecutionMacros:  {},
	keyVariables:             {},
}

var substitutionPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// descriptor is one variable combination of a benchmark file, decoded.
type descriptor struct {
	Name                  string   `mapstructure:"name"`
	DataSource            string   `mapstructure:"datasource"`
	QueryNames            []string `mapstructure:"query-names"`
	Runs                  int      `mapstructure:"runs"`
	PrewarmRuns           int      `mapstructure:"prewarm-runs"`
	Concurrency           int      `mapstructure:"concurrency"`
	ThroughputTest        bool     `mapstructure:"throughput-test"`
	Frequency             int      `mapstructure:"frequency"`
	BeforeBenchmarkMacros []string `mapstructure:"before-benchmark"`
	AfterBenchmarkMacros  []string `mapstructure:"after-benchmark"`
	BeforeExecutionMacros []string `mapstructure:"before-execution"`
	AfterExecutionMacros  []string `mapstructure:"after-execution"`

	Variables map[string]string `mapstructure:"-"`
}

// decodeDescriptor decodes one variable combination. Absent keys keep
// their defaults.
func decodeDescriptor(variables map[string]string) (*descriptor, error) {
	d := &descriptor{
		Runs:        DefaultRuns,
		PrewarmRuns: DefaultPrewarmRuns,
		Concurrency: DefaultConcurrency,
		Variables:   variables,
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           d,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	if err := decoder.Decode(variables); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}

	d.QueryNames = trimAll(d.QueryNames)
	d.BeforeBenchmarkMacros = trimAll(d.BeforeBenchmarkMacros)
	d.AfterBenchmarkMacros = trimAll(d.AfterBenchmarkMacros)
	d.BeforeExecutionMacros = trimAll(d.BeforeExecutionMacros)
	d.AfterExecutionMacros = trimAll(d.AfterExecutionMacros)

	return d, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}

// expandDescriptors turns a parsed benchmark file into one variable map
// per combination. Top-level keys are global and apply to every
// combination unless the combination sets them itself.
func expandDescriptors(defaultName string, doc map[string]any) ([]map[string]string, error) {
	combinations, err := variableCombinations(doc[keyVariables])
	if err != nil {
		return nil, err
	}

	globals := make(map[string]string, len(doc))

	for key, value := range doc {
		if key == keyVariables {
			continue
		}

		s, err := stringify(value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}

		globals[key] = s
	}

	if _, ok := globals[keyName]; !ok {
		globals[keyName] = defaultName
	}

	for _, combination := range combinations {
		for key, value := range globals {
			if _, ok := combination[key]; !ok {
				combination[key] = value
			}
		}

		if err := substitute(combination); err != nil {
			return nil, err
		}
	}

	return combinations, nil
}

// variableCombinations expands every variable group into the cartesian
// product of its values. No groups yields a single empty combination.
func variableCombinations(raw any) ([]map[string]string, error) {
	if raw == nil {
		return []map[string]string{{}}, nil
	}

	groups, ok := stringMap(raw)
	if !ok {
		return nil, fmt.Errorf("%q must be a map of variable groups", keyVariables)
	}

	combinations := make([]map[string]string, 0, len(groups))

	for _, groupName := range slices.Sorted(maps.Keys(groups)) {
		group, ok := stringMap(groups[groupName])
		if !ok {
			return nil, fmt.Errorf("variable group %q must be a map", groupName)
		}

		values := make(map[string][]string, len(group))

		for key, value := range group {
			list, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("variable group %q key %q: %w", groupName, key, err)
			}

			values[key] = list
		}

		combinations = append(combinations, cartesianProduct(values)...)
	}

	if len(combinations) == 0 {
		combinations = append(combinations, map[string]string{})
	}

	return combinations, nil
}

// cartesianProduct returns every combination of the given values, with
// keys iterated in sorted order.
func cartesianProduct(values map[string][]string) []map[string]string {
	result := []map[string]string{{}}

	for _, key := range slices.Sorted(maps.Keys(values)) {
		next := make([]map[string]string, 0, len(result)*len(values[key]))

		for _, partial := range result {
			for _, value := range values[key] {
				combination := maps.Clone(partial)
				combination[key] = value

				next = append(next, combination)
			}
		}

		result = next
	}

	return result
}

// substitute resolves ${name} references against the same combination.
// References that resolve to further references are rejected.
func substitute(variables map[string]string) error {
	resolved := make(map[string]string, len(variables))

	for key, value := range variables {
		if !substitutionPattern.MatchString(value) {
			continue
		}

		var missing string

		evaluated := substitutionPattern.ReplaceAllStringFunc(value, func(ref string) string {
			name := substitutionPattern.FindStringSubmatch(ref)[1]

			v, ok := variables[name]
			if !ok {
				missing = name
			}

			return v
		})

		if missing != "" {
			return fmt.Errorf("variable %q references undefined variable %q", key, missing)
		}

		if substitutionPattern.MatchString(evaluated) {
			return fmt.Errorf("recursive value substitution is not supported, invalid %s: %s", key, value)
		}

		resolved[key] = evaluated
	}

	maps.Copy(variables, resolved)

	return nil
}

// stringMap returns value as a map with string keys. YAML mappings with
// non-string keys decode as map[any]any.
func stringMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = item
		}

		return out, true
	default:
		return nil, false
	}
}

// stringify renders a scalar or a list of scalars as a string. Lists are
// joined with commas.
func stringify(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case []any:
		list, err := stringList(v)
		if err != nil {
			return "", err
		}

		return strings.Join(list, ", "), nil
	case map[string]any, map[any]any:
		return "", fmt.Errorf("nested maps are not supported")
	default:
		return fmt.Sprint(v), nil
	}
}

// stringList renders a scalar as a single-element list and a list element
// by element.
func stringList(value any) ([]string, error) {
	list, ok := value.([]any)
	if !ok {
		s, err := stringify(value)
		if err != nil {
			return nil, err
		}

		return []string{s}, nil
	}

	out := make([]string, 0, len(list))

	for _, item := range list {
		if _, nested := item.([]any); nested {
			return nil, fmt.Errorf("nested lists are not supported")
		}

		s, err := stringify(item)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, nil
}

// uniqueName returns the benchmark name followed by its sorted
// non-reserved variables.
func uniqueName(name string, variables map[string]string) string {
	parts := []string{name}

	for _, key := range slices.Sorted(maps.Keys(variables)) {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}

		parts = append(parts, key+"="+variables[key])
	}

	return strings.Join(parts, "_")
}
