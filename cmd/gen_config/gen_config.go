package main

// Generate a commented smistream.toml holding the default [stream] and
// [smi] configuration.  Keys and comments come from the mapstructure and
// desc tags of stream.Config and smi.Settings.
//
// Usage:
//
//    gen_config [-o FILE]

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/spf13/pflag"

	"github.com/cariboulabs/smistream/smi"
	"github.com/cariboulabs/smistream/stream"
)

// key is one configuration key
type key struct {
	name  string      // key name in the TOML file
	desc  string      // human-readable description of the field
	value interface{} // default value
}

// Line returns the TOML for the key, preceded by its description.
func (k key) Line() string {
	var v string
	switch x := k.value.(type) {
	case time.Duration:
		v = fmt.Sprintf("%q", x.String())
	case string:
		v = fmt.Sprintf("%q", x)
	case float32, float64:
		v = fmt.Sprintf("%g", x)
	case bool:
		v = fmt.Sprintf("%t", x)
	default:
		v = fmt.Sprintf("%d", x)
	}
	return fmt.Sprintf("# %s\n%s = %s\n", k.desc, k.name, v)
}

// ExtractKeys reads configuration keys from a struct value: every field
// with a mapstructure tag becomes one key, in field order.
func ExtractKeys(x interface{}) []key {
	var keys []key
	v := reflect.Indirect(reflect.ValueOf(x))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("mapstructure")
		if name == "" || !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		var val interface{}
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if fv.Type() == reflect.TypeOf(time.Duration(0)) {
				val = time.Duration(fv.Int())
			} else {
				val = fv.Int()
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			val = fv.Uint()
		default:
			val = fv.Interface()
		}
		keys = append(keys, key{name: name, desc: f.Tag.Get("desc"), value: val})
	}
	return keys
}

// section is one [table] of the generated file
type section struct {
	name string
	x    interface{}
}

var sections = []section{
	{"stream", stream.DefaultConfig()},
	{"smi", smi.DefaultSettings()},
}

func generate(w io.Writer) error {
	if _, err := fmt.Fprint(w, "# smistream configuration - generated by gen_config\n"); err != nil {
		return err
	}
	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "\n[%s]\n", s.name); err != nil {
			return err
		}
		for _, k := range ExtractKeys(s.x) {
			if _, err := fmt.Fprint(w, "\n"+k.Line()); err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	fs := pflag.NewFlagSet("gen_config", pflag.ExitOnError)
	out := fs.StringP("output", "o", "-", "output file; - for stdout")
	fs.Parse(os.Args[1:])

	w := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gen_config: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := generate(w); err != nil {
		fmt.Fprintf(os.Stderr, "gen_config: %v\n", err)
		os.Exit(1)
	}
}
