// Package factory instantiates pluggable modules (curve sources, metrics
// sinks) from configuration. A module is a type string plus a map of raw
// settings; each factory decodes the settings into its own struct.
//
//	reg := factory.NewRegistry[curve.Source]()
//	reg.Register("csv", func(conf map[string]any) (curve.Source, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return curve.CSVSource{Path: c.Path}, nil
//	})
//	src, err := reg.Create(factory.ModuleConfig{Type: "csv", Conf: map[string]any{"path": "ocv.csv"}})
package factory
