package testclass

import (
	"github.com/indrora/pack200/pack200/classfile"
)

// Hello is the smallest useful class: a constructor and a main method that
// prints a string. Two Hello classes share every constant but their names.
func Hello(name string) []byte {
	b := New(name, "java/lang/Object")

	ctor := new(Asm).
		Op(0x2a).
		Op(0xb7).U2(b.Methodref("java/lang/Object", "<init>", "()V")).
		Op(0xb1)

	main := new(Asm).
		Op(0xb2).U2(b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")).
		Op(0x12, byte(b.Str("Hello"))).
		Op(0xb6).U2(b.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V")).
		Op(0xb1)

	b.Method(ACC_PUBLIC, "<init>", "()V", b.Code(1, 1, ctor.Bytes(), nil))
	b.Method(ACC_PUBLIC|ACC_STATIC, "main", "([Ljava/lang/String;)V", b.Code(2, 1, main.Bytes(), nil))
	return b.Bytes()
}

// Rich exercises every constant kind the pool carries, every operand shape
// of the bytecode transcoder and every built-in attribute layout except the
// type annotations.
func Rich(name string) []byte {
	b := New(name, "java/lang/Object").Version(52, 0)

	// ldc targets first so that they land below slot 256.
	cInt := b.Int(123456)
	cFloat := b.Float(2.5)
	cString := b.Str("rich")
	cClass := b.Class("java/lang/StringBuilder")
	cLong := b.Long(1 << 40)
	cDouble := b.Double(-0.125)
	cType := b.MethodType("(I)V")
	target := b.Methodref(name, "lambda$0", "()V")
	cHandle := b.MethodHandle(6, target)

	b.Interface("java/lang/Runnable").Interface("java/io/Serializable")

	metafactory := b.MethodHandle(6, b.Methodref("java/lang/invoke/LambdaMetafactory", "metafactory",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;"+
			"Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)"+
			"Ljava/lang/invoke/CallSite;"))
	voidType := b.MethodType("()V")
	indy := b.InvokeDynamic(0, "run", "()Ljava/lang/Runnable;")

	field := b.Fieldref(name, "counter", "I")
	list := b.Class("java/util/List")
	size := b.InterfaceMethodref("java/util/List", "size", "()I")
	ifaceStatic := b.InterfaceMethodref("java/util/List", "of", "()Ljava/util/List;")
	ifaceSpecial := b.InterfaceMethodref("java/lang/Runnable", "run", "()V")
	toString := b.Methodref("java/lang/Object", "toString", "()Ljava/lang/String;")
	grid := b.Class("[[I")
	exception := b.Class("java/lang/Exception")

	code := new(Asm)
	code.Op(0x03, 0x3c)                                          // iconst_0 istore_1
	code.Op(0x10, 0xfb)                                          // bipush -5
	code.Op(0x11).S2(1000)                                       // sipush
	code.Op(0x58)                                                // pop2
	code.Op(0x12, byte(cInt))                                    // ldc int
	code.Op(0x12, byte(cFloat))                                  // ldc float
	code.Op(0x13).U2(cString)                                    // ldc_w string
	code.Op(0x12, byte(cClass))                                  // ldc class
	code.Op(0x14).U2(cLong)                                      // ldc2_w long
	code.Op(0x14).U2(cDouble)                                    // ldc2_w double
	code.Op(0x12, byte(cType))                                   // ldc method type
	code.Op(0x12, byte(cHandle))                                 // ldc method handle
	code.Op(0x84, 0x01, 0x03)                                    // iinc 1 3
	code.Op(0xc4, 0x84).U2(1).S2(300)                            // wide iinc 1 300
	code.Op(0xc4, 0x15).U2(300)                                  // wide iload 300
	code.Op(0x1a)                                                // iload_0
	code.Op(0xaa).Pad().S4(40).S4(0).S4(2).S4(12).S4(16).S4(20)  // tableswitch 0..2
	code.Op(0x1a)                                                // iload_0
	code.Op(0xab).Pad().S4(30).S4(2).S4(-1).S4(8).S4(100).S4(12) // lookupswitch
	code.Op(0x99).S2(5)                                          // ifeq
	code.Op(0x00, 0x00)                                          // nop nop
	code.Op(0xc8).S4(5)                                          // goto_w
	code.Op(0xb2).U2(field)                                      // getstatic
	code.Op(0xb3).U2(field)                                      // putstatic
	code.Op(0xb6).U2(toString)                                   // invokevirtual
	code.Op(0xb7).U2(ifaceSpecial)                               // invokespecial on an interface
	code.Op(0xb8).U2(ifaceStatic)                                // invokestatic on an interface
	code.Op(0xb9).U2(size).Op(0x01, 0x00)                        // invokeinterface
	code.Op(0xba).U2(indy).Op(0x00, 0x00)                        // invokedynamic
	code.Op(0xbb).U2(cClass)                                     // new
	code.Op(0xbc, 0x0a)                                          // newarray int
	code.Op(0xbd).U2(list)                                       // anewarray
	code.Op(0xc5).U2(grid).Op(0x02)                              // multianewarray
	code.Op(0xc0).U2(list)                                       // checkcast
	code.Op(0xc1).U2(list)                                       // instanceof
	code.Op(0x15, 0x04, 0x36, 0x05)                              // iload 4 istore 5
	code.Op(0xc6).S2(-3)                                         // ifnull
	code.Op(0xc7).S2(4)                                          // ifnonnull
	code.Op(0xbf)                                                // athrow
	code.Op(0xac)                                                // ireturn
	end := uint16(code.Len())

	lines := new(Asm).U2(2).U2(0).U2(10).U2(40).U2(11)
	locals := new(Asm).U2(1).U2(0).U2(end).U2(b.Utf8("x")).U2(b.Utf8("I")).U2(0)
	// same, same_locals_1_stack_item, append, chop and full frames
	frames := new(Asm).U2(5).
		Op(10).
		Op(64+3, 1).
		Op(252).U2(5).Op(7).U2(b.Class("java/lang/String")).
		Op(249).U2(2).
		Op(255).U2(7).U2(2).Op(1).Op(7).U2(list).U2(1).Op(8).U2(54)
	handlers := []classfile.Handler{
		{StartPC: 0, EndPC: 40, HandlerPC: 99, CatchType: exception},
		{StartPC: 40, EndPC: 99, HandlerPC: 101, CatchType: 0},
	}
	work := b.Code(6, 301, code.Bytes(), handlers,
		b.Attr("LineNumberTable", lines.Bytes()),
		b.Attr("LocalVariableTable", locals.Bytes()),
		b.Attr("StackMapTable", frames.Bytes()),
	)

	tag := new(Asm).U2(2).
		U2(b.Utf8("Ljava/lang/Deprecated;")).U2(0).
		U2(b.Utf8("Lcom/example/Tag;")).U2(10).
		U2(b.Utf8("value")).Op('I').U2(b.Int(42)).
		U2(b.Utf8("text")).Op('s').U2(b.Utf8("hi")).
		U2(b.Utf8("kind")).Op('e').U2(b.Utf8("Ljava/lang/annotation/ElementType;")).U2(b.Utf8("TYPE")).
		U2(b.Utf8("type")).Op('c').U2(b.Utf8("Ljava/lang/String;")).
		U2(b.Utf8("list")).Op('[').U2(2).Op('I').U2(b.Int(1)).Op('s').U2(b.Utf8("two")).
		U2(b.Utf8("inner")).Op('@').U2(b.Utf8("Lcom/example/Inner;")).U2(0).
		U2(b.Utf8("big")).Op('J').U2(b.Long(7)).
		U2(b.Utf8("ratio")).Op('D').U2(b.Double(0.5)).
		U2(b.Utf8("scale")).Op('F').U2(b.Float(1.5)).
		U2(b.Utf8("flag")).Op('Z').U2(b.Int(1))
	params := new(Asm).Op(1).U2(1).U2(b.Utf8("Lcom/example/NotNull;")).U2(0)
	names := new(Asm).Op(1).U2(b.Utf8("n")).U2(0x10)
	throws := new(Asm).U2(1).U2(b.Class("java/io/IOException"))

	b.Method(ACC_PUBLIC|ACC_STATIC, "work", "(I)I",
		work,
		b.Attr("Exceptions", throws.Bytes()),
		b.Attr("Signature", u2(b.Utf8("<T:Ljava/lang/Object;>(I)I"))),
		b.Attr("RuntimeVisibleAnnotations", tag.Bytes()),
		b.Attr("RuntimeVisibleParameterAnnotations", params.Bytes()),
		b.Attr("MethodParameters", names.Bytes()),
	)
	b.Method(ACC_PUBLIC|ACC_ABSTRACT, "value", "()I",
		b.Attr("AnnotationDefault", new(Asm).Op('I').U2(b.Int(3)).Bytes()),
	)
	b.Method(ACC_PRIVATE|ACC_STATIC, "lambda$0", "()V",
		b.Code(0, 0, []byte{0xb1}, nil),
		b.Attr("Synthetic", nil),
	)

	b.Field(ACC_STATIC, "counter", "I", b.Attr("ConstantValue", u2(b.Int(7))))
	b.Field(ACC_STATIC|ACC_FINAL, "BIG", "J", b.Attr("ConstantValue", u2(cLong)))
	b.Field(ACC_PUBLIC, "label", "Ljava/lang/String;",
		b.Attr("Signature", u2(b.Utf8("Ljava/lang/String;"))),
		b.Attr("Deprecated", nil),
	)

	bootstrap := new(Asm).U2(1).U2(metafactory).U2(3).U2(voidType).U2(cHandle).U2(voidType)
	inner := new(Asm).U2(1).U2(b.Class(name + "$Inner")).U2(b.class.This).U2(b.Utf8("Inner")).U2(ACC_STATIC)
	b.ClassAttr(
		b.Attr("SourceFile", u2(b.Utf8("Rich.java"))),
		b.Attr("InnerClasses", inner.Bytes()),
		b.Attr("BootstrapMethods", bootstrap.Bytes()),
		b.Attr("com.example.Custom", []byte{1, 2, 3}),
	)
	return b.Bytes()
}

// TypeAnnotated carries type annotations on a field and inside code.
func TypeAnnotated(name string) []byte {
	b := New(name, "java/lang/Object").Version(52, 0)
	nonNull := b.Utf8("Lcom/example/NonNull;")

	onField := new(Asm).U2(1).
		Op(0x13).Op(0).U2(nonNull).U2(0)
	onLocal := new(Asm).U2(1).
		Op(0x40).U2(1).U2(0).U2(3).U2(1).
		Op(1).Op(3, 0).
		U2(nonNull).U2(0)

	b.Field(ACC_PRIVATE, "name", "Ljava/lang/String;",
		b.Attr("RuntimeVisibleTypeAnnotations", onField.Bytes()))
	code := []byte{0x01, 0x4c, 0xb1} // aconst_null astore_1 return
	b.Method(ACC_PUBLIC|ACC_STATIC, "run", "()V",
		b.Code(1, 2, code, nil, b.Attr("RuntimeVisibleTypeAnnotations", onLocal.Bytes())))
	return b.Bytes()
}

// Indy is a small class whose only dynamic-linkage constant is a
// MethodType, on an old class file version.
func Indy(name string) []byte {
	b := New(name, "java/lang/Object")
	mt := b.MethodType("()V")
	b.Method(ACC_PUBLIC|ACC_STATIC, "type", "()Ljava/lang/Object;",
		b.Code(1, 0, []byte{0x12, byte(mt), 0xb0}, nil)) // ldc areturn
	return b.Bytes()
}

// Malformed starts like a class file but is cut short.
func Malformed() []byte {
	return []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x00, 0x00, 0x32, 0x00, 0x10, 0x01}
}

// Future is a well-formed class with a major version no format carries.
func Future(name string) []byte {
	return New(name, "java/lang/Object").Version(61, 0).Bytes()
}

func u2(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
