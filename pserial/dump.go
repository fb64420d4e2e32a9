package pserial

import (
	"strconv"
	"strings"
)

// Dump renders v as an indented human-readable tree in var_dump style:
//
//	array(2) {
//	  [0]=>
//	  int(1)
//	  ["name"]=>
//	  string(3) "abc"
//	}
//
// The output is for inspection only and is not parsed back.
func Dump(v *Value) string {
	d := &dumper{}
	d.dump(v, 0)
	return d.sb.String()
}

type dumper struct {
	sb strings.Builder
}

func (d *dumper) writeIndent(depth int) {
	for i := 0; i < depth; i++ {
		d.sb.WriteString("  ")
	}
}

func (d *dumper) dump(v *Value, depth int) {
	d.writeIndent(depth)

	switch v.Kind() {
	case KindNull:
		d.sb.WriteString("NULL\n")

	case KindBool:
		d.sb.WriteString("bool(")
		d.sb.WriteString(strconv.FormatBool(v.boolVal))
		d.sb.WriteString(")\n")

	case KindInt:
		d.sb.WriteString("int(")
		d.sb.WriteString(strconv.FormatInt(v.intVal, 10))
		d.sb.WriteString(")\n")

	case KindDouble:
		d.sb.WriteString("float(")
		d.sb.Write(appendDouble(nil, v.floatVal))
		d.sb.WriteString(")\n")

	case KindStr:
		d.sb.WriteString("string(")
		d.sb.WriteString(strconv.Itoa(len(v.strVal)))
		d.sb.WriteString(") \"")
		d.sb.WriteString(v.strVal)
		d.sb.WriteString("\"\n")

	case KindArray:
		d.sb.WriteString("array(")
		d.sb.WriteString(strconv.Itoa(len(v.arrVal)))
		d.sb.WriteString(") {\n")
		for _, e := range v.arrVal {
			d.writeIndent(depth + 1)
			key, err := CoerceKey(e.Key)
			if err != nil {
				key = Str(keyString(e.Key))
			}
			if key.Kind() == KindInt {
				d.sb.WriteString("[" + strconv.FormatInt(key.intVal, 10) + "]=>\n")
			} else {
				d.sb.WriteString("[\"" + key.strVal + "\"]=>\n")
			}
			d.dump(e.Value, depth+1)
		}
		d.writeIndent(depth)
		d.sb.WriteString("}\n")

	case KindStruct:
		s := v.structVal
		d.sb.WriteString("object(")
		d.sb.WriteString(s.Name)
		d.sb.WriteString(") (")
		d.sb.WriteString(strconv.Itoa(len(s.Fields)))
		d.sb.WriteString(") {\n")
		for _, f := range s.Fields {
			d.writeIndent(depth + 1)
			d.sb.WriteString("[\"" + f.Name + "\"]=>\n")
			d.dump(f.Value, depth+1)
		}
		d.writeIndent(depth)
		d.sb.WriteString("}\n")
	}
}
