package attr

import (
	"strconv"
	"strings"
)

// Element values of annotations, shared by the annotation layouts. The
// placeholders are replaced with the callable numbers of the annotation and
// element value bodies.
const elementValue = "TB(66,67,73,83,90)[KIH](68)[KDH](70)[KFH](74)[KJH](99)[RSH](101)[RSHRUH](115)[RUH](91)[NH[(%V)]](64)[(%A)]()[]"

// annotationLayout appends the annotation and element value callables to
// prefix. They must land at callable numbers annotation and value.
func annotationLayout(prefix string, annotation, value int) string {
	ev := strings.NewReplacer("%V", strconv.Itoa(value), "%A", strconv.Itoa(annotation)).Replace(elementValue)
	return prefix + "[RSHNH[RUH(" + strconv.Itoa(value) + ")]][" + ev + "]"
}

// typeAnnotation covers target_info and type_path, then hands over to the
// annotation body at callable annotation.
func typeAnnotation(annotation int) string {
	return "[TB(0-1)[B](16)[H](17-18)[BB](19-21)[](22)[B](23)[H](64-65)[NH[PHOHH]](66)[H](67-70)[PH](71-75)[PHB]()[]" +
		"NB[BB](" + strconv.Itoa(annotation) + ")]"
}

var (
	annotationsLayout          = annotationLayout("[NH[(1)]]", 1, 2)
	parameterAnnotationsLayout = annotationLayout("[NB[(1)]][NH[(2)]]", 2, 3)
	annotationDefaultLayout    = annotationLayout("[(2)]", 1, 2)
	typeAnnotationsLayout      = "[NH[(1)]]" + typeAnnotation(2) + annotationLayout("", 2, 3)
)

const stackMapTableLayout = "[NH[(1)]]" +
	"[TB(64-127)[(2)](247)[OH(2)](248-251)[OH](252)[OH(2)](253)[OH(2)(2)](254)[OH(2)(2)(2)](255)[OHNH[(2)]NH[(2)]]()[]]" +
	"[TB(7)[RCH](8)[PH]()[]]"

// builtinLayouts are the attributes transcoded unless a property says
// otherwise. Code is handled structurally and never appears here.
var builtinLayouts = map[Context]map[string]string{
	CONTEXT_CLASS: {
		"SourceFile":                      "RUH",
		"Signature":                       "RSH",
		"Deprecated":                      "",
		"Synthetic":                       "",
		"EnclosingMethod":                 "RCHRDNH",
		"InnerClasses":                    "NH[RCHRCNHRUNHFH]",
		"BootstrapMethods":                "NH[RHHNH[KQH]]",
		"RuntimeVisibleAnnotations":       annotationsLayout,
		"RuntimeInvisibleAnnotations":     annotationsLayout,
		"RuntimeVisibleTypeAnnotations":   typeAnnotationsLayout,
		"RuntimeInvisibleTypeAnnotations": typeAnnotationsLayout,
	},
	CONTEXT_FIELD: {
		"ConstantValue":                   "KQH",
		"Signature":                       "RSH",
		"Deprecated":                      "",
		"Synthetic":                       "",
		"RuntimeVisibleAnnotations":       annotationsLayout,
		"RuntimeInvisibleAnnotations":     annotationsLayout,
		"RuntimeVisibleTypeAnnotations":   typeAnnotationsLayout,
		"RuntimeInvisibleTypeAnnotations": typeAnnotationsLayout,
	},
	CONTEXT_METHOD: {
		"Exceptions":                           "NH[RCH]",
		"Signature":                            "RSH",
		"Deprecated":                           "",
		"Synthetic":                            "",
		"MethodParameters":                     "NB[RUNHFH]",
		"AnnotationDefault":                    annotationDefaultLayout,
		"RuntimeVisibleAnnotations":            annotationsLayout,
		"RuntimeInvisibleAnnotations":          annotationsLayout,
		"RuntimeVisibleParameterAnnotations":   parameterAnnotationsLayout,
		"RuntimeInvisibleParameterAnnotations": parameterAnnotationsLayout,
		"RuntimeVisibleTypeAnnotations":        typeAnnotationsLayout,
		"RuntimeInvisibleTypeAnnotations":      typeAnnotationsLayout,
	},
	CONTEXT_CODE: {
		"LineNumberTable":                 "NH[PHH]",
		"LocalVariableTable":              "NH[PHOHRUHRSHH]",
		"LocalVariableTypeTable":          "NH[PHOHRUHRSHH]",
		"StackMapTable":                   stackMapTableLayout,
		"RuntimeVisibleTypeAnnotations":   typeAnnotationsLayout,
		"RuntimeInvisibleTypeAnnotations": typeAnnotationsLayout,
	},
}

// CODE is the structural method attribute holding bytecode.
const CODE = "Code"

// TypeAnnotationAttributes need format 171.0 or later wherever they appear.
var TypeAnnotationAttributes = []string{
	"RuntimeVisibleTypeAnnotations",
	"RuntimeInvisibleTypeAnnotations",
}

// Builtin returns the built-in layout of name in ctx.
func Builtin(ctx Context, name string) (string, bool) {
	l, ok := builtinLayouts[ctx][name]
	return l, ok
}
