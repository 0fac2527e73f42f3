// Package validation validates decoded request bodies.
//
// Rules are go-playground/validator struct tags; failures come back as an
// *Errors bag keyed by the JSON field name:
//
//	type transitionRequest struct {
//	    To string `json:"to" validate:"required,max=128"`
//	}
//
//	if err := validation.Struct(req); err != nil {
//	    var bag *validation.Errors
//	    if errors.As(err, &bag) {
//	        // JSON: {"errors": {"to": ["The to field is required."]}}
//	    }
//	}
package validation
