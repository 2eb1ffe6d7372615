package engine

// obj builds an object row from alternating keys and Go values.
func obj(kv ...any) Value {
	fields := make(map[string]Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = FromAny(kv[i+1])
	}
	return Object(fields)
}

// scenarioView is the five-row dataset used across the engine tests.
func scenarioView() *SliceView {
	return NewSliceView([]Value{
		obj("id", 0, "code", "A", "value", 10, "isActive", true),
		obj("id", 1, "code", "B", "value", 10, "isActive", false),
		obj("id", 2, "code", "C", "value", 20, "isActive", true),
		obj("id", 3, "code", "D", "value", 20, "isActive", true),
		obj("id", 4, "code", "E", "value", 5, "isActive", false),
	})
}

func leaf(field, op string, value any) Value {
	return obj("field", field, "operator", op, "value", value)
}

func composite(op string, children ...Value) Value {
	return obj("operator", op, "expressions", Array(children...))
}
