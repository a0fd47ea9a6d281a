package utils

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free-form set of model specific attributes as read from a config file.
type AttributeMap map[string]interface{}

// TransformAttributeMapToStruct decodes attributes into to, which must be a pointer to a struct
// tagged with json names. Unknown attributes are an error.
func TransformAttributeMapToStruct(to interface{}, attributes AttributeMap) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           to,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "creating attribute decoder")
	}
	if err := decoder.Decode(attributes); err != nil {
		return errors.Wrap(err, "decoding attributes")
	}
	return nil
}
