// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

// Package pattern expands destination-path templates against entity
// attributes.  A template like "{term}/{image}_{id}.png" binds each
// {name} placeholder to the matching attribute of its source; when a
// placeholder resolves to an iterable value, the expansion is the
// Cartesian product over all iterable bindings, so one template can
// name several concrete paths.
package pattern

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Resolve expands template using attrs as the value source.  Missing
// attributes render as a literal underscore; a template with no
// placeholders resolves to itself.
func Resolve(template string, attrs map[string]interface{}) []string {
	names := placeholderNames(template)
	if len(names) == 0 {
		return []string{template}
	}

	// One binding list per placeholder, in placeholder order.
	bindings := make([][]string, len(names))
	for i, name := range names {
		bindings[i] = valuesOf(attrs[name])
	}

	var out []string
	combination := make(map[string]string, len(names))
	var walk func(i int)
	walk = func(i int) {
		if i == len(names) {
			out = append(out, placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
				return combination[m[1:len(m)-1]]
			}))
			return
		}
		for _, v := range bindings[i] {
			combination[names[i]] = v
			walk(i + 1)
		}
	}
	walk(0)
	return out
}

// placeholderNames extracts the distinct placeholder names of a
// template, in first-appearance order.
func placeholderNames(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// valuesOf renders an attribute as its binding list: iterables fan
// out per element, everything else is a single binding, and an absent
// attribute is the literal underscore.
func valuesOf(v interface{}) []string {
	if v == nil {
		return []string{"_"}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			return []string{"_"}
		}
		out := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = format(rv.Index(i).Interface())
		}
		return out
	}
	return []string{format(v)}
}

// format renders one scalar binding.  JSON numbers arrive as floats;
// integral values drop the fractional part so identifiers do not grow
// a ".0" suffix.
func format(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return format(float64(n))
	default:
		return fmt.Sprintf("%v", v)
	}
}
