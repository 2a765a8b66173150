package code

import "fmt"

// Opcode identifies a stack machine instruction.
type Opcode uint8

const (
	OpPUSH   Opcode = iota // push literal operand
	OpRET                  // pop return value, leave frame, push value in caller
	OpENTRY                // function entry; operand = local cell count
	OpADD                  // pop b, pop a, push a+b
	OpSUB                  // pop b, pop a, push a-b
	OpMUL                  // pop b, pop a, push a*b
	OpDIV                  // pop b, pop a, push a/b
	OpFRAME                // stage operand values from the stack as the next frame's arguments
	OpSTOREL               // pop value into slot operand
	OpLOADL                // push value of slot operand
	OpCALL                 // call absolute address operand
	OpPOPR                 // discard top of stack

	OpMOD    // pop b, pop a, push a%b
	OpEQ     // pop b, pop a, push a==b
	OpNE     // pop b, pop a, push a!=b
	OpLT     // pop b, pop a, push a<b
	OpLE     // pop b, pop a, push a<=b
	OpGT     // pop b, pop a, push a>b
	OpGE     // pop b, pop a, push a>=b
	OpJMP    // jump to operand
	OpJZ     // pop, jump to operand when zero
	OpADDRL  // push absolute address of slot operand
	OpLOAD   // pop address, push cell
	OpSTORE  // pop value, pop address, store
	OpPRINTF // pop operand values (format first), write formatted text

	OpDIVU // unsigned a/b
	OpMODU // unsigned a%b
	OpLTU  // unsigned a<b
	OpLEU  // unsigned a<=b
	OpGTU  // unsigned a>b
	OpGEU  // unsigned a>=b
	OpSEXT // truncate top of stack to operand bytes, sign-extend
	OpZEXT // truncate top of stack to operand bytes, zero-extend

	numOpcodes
)

var opcodeNames = [...]string{
	OpPUSH:   "PUSH",
	OpRET:    "RET",
	OpENTRY:  "ENTRY",
	OpADD:    "ADD",
	OpSUB:    "SUB",
	OpMUL:    "MUL",
	OpDIV:    "DIV",
	OpFRAME:  "FRAME",
	OpSTOREL: "STOREL",
	OpLOADL:  "LOADL",
	OpCALL:   "CALL",
	OpPOPR:   "POPR",
	OpMOD:    "MOD",
	OpEQ:     "EQ",
	OpNE:     "NE",
	OpLT:     "LT",
	OpLE:     "LE",
	OpGT:     "GT",
	OpGE:     "GE",
	OpJMP:    "JMP",
	OpJZ:     "JZ",
	OpADDRL:  "ADDRL",
	OpLOAD:   "LOAD",
	OpSTORE:  "STORE",
	OpPRINTF: "PRINTF",
	OpDIVU:   "DIVU",
	OpMODU:   "MODU",
	OpLTU:    "LTU",
	OpLEU:    "LEU",
	OpGTU:    "GTU",
	OpGEU:    "GEU",
	OpSEXT:   "SEXT",
	OpZEXT:   "ZEXT",
}

// noOperand lists the opcodes that never carry an operand.
var noOperand = map[Opcode]bool{
	OpRET:   true,
	OpADD:   true,
	OpSUB:   true,
	OpMUL:   true,
	OpDIV:   true,
	OpPOPR:  true,
	OpMOD:   true,
	OpEQ:    true,
	OpNE:    true,
	OpLT:    true,
	OpLE:    true,
	OpGT:    true,
	OpGE:    true,
	OpLOAD:  true,
	OpSTORE: true,
	OpDIVU:  true,
	OpMODU:  true,
	OpLTU:   true,
	OpLEU:   true,
	OpGTU:   true,
	OpGEU:   true,
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// HasOperand reports whether instructions with this opcode carry an operand.
func (op Opcode) HasOperand() bool {
	return op < numOpcodes && !noOperand[op]
}

// IsJump reports whether the operand is an instruction address.
func (op Opcode) IsJump() bool {
	return op == OpJMP || op == OpJZ || op == OpCALL
}

// ParseOpcode maps a mnemonic back to its opcode.
func ParseOpcode(name string) (Opcode, bool) {
	for i, n := range opcodeNames {
		if n == name {
			return Opcode(i), true
		}
	}
	return 0, false
}
