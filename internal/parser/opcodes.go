package parser

// arity describes how many stack values an opcode consumes and produces.
// pop or push of -1 means the effect depends on immediates; the symbolic
// stack is reset after such an op.
type arity struct {
	pop, push int
}

// tealOps lists the AVM opcodes not given dedicated handling in teal.go.
var tealOps = map[string]arity{
	// crypto
	"ed25519verify": {3, 1}, "ed25519verify_bare": {3, 1},
	"ecdsa_verify": {5, 1}, "ecdsa_pk_decompress": {1, 2}, "ecdsa_pk_recover": {4, 2},
	"vrf_verify": {3, 2}, "falcon_verify": {3, 1},
	"ec_add": {2, 1}, "ec_scalar_mul": {2, 1}, "ec_pairing_check": {2, 1},
	"ec_multi_scalar_mul": {2, 1}, "ec_subgroup_check": {1, 1}, "ec_map_to": {1, 1},
	"mimc": {1, 1},

	// arithmetic and logic
	"<<": {2, 1}, ">>": {2, 1}, "|": {2, 1}, "&": {2, 1}, "^": {2, 1}, "~": {1, 1},
	"addw": {2, 2}, "mulw": {2, 2}, "divw": {3, 1}, "divmodw": {4, 4},
	"exp": {2, 1}, "expw": {2, 2}, "sqrt": {1, 1}, "bitlen": {1, 1},
	"shl": {2, 1}, "shr": {2, 1},
	"b+": {2, 1}, "b-": {2, 1}, "b/": {2, 1}, "b*": {2, 1}, "b%": {2, 1},
	"b<": {2, 1}, "b>": {2, 1}, "b<=": {2, 1}, "b>=": {2, 1}, "b==": {2, 1}, "b!=": {2, 1},
	"b|": {2, 1}, "b&": {2, 1}, "b^": {2, 1}, "b~": {1, 1}, "bsqrt": {1, 1},

	// byte manipulation
	"len": {1, 1}, "itob": {1, 1}, "btoi": {1, 1}, "concat": {2, 1},
	"substring": {1, 1}, "substring3": {3, 1},
	"getbit": {2, 1}, "setbit": {3, 1}, "getbyte": {2, 1}, "setbyte": {3, 1},
	"extract": {1, 1}, "extract3": {3, 1},
	"extract_uint16": {2, 1}, "extract_uint32": {2, 1}, "extract_uint64": {2, 1},
	"replace2": {2, 1}, "replace3": {3, 1}, "bzero": {1, 1},
	"base64_decode": {1, 1}, "json_ref": {2, 1},

	// stack manipulation with fixed effect
	"dup2": {2, 4}, "select": {3, 1},

	// state and ledger access
	"balance": {1, 1}, "min_balance": {1, 1},
	"app_opted_in": {2, 1},
	"asset_holding_get": {2, 2}, "asset_params_get": {1, 2},
	"app_params_get": {1, 2}, "acct_params_get": {1, 2},
	"voter_params_get": {1, 2}, "online_stake": {0, 1},
	"block": {1, 1}, "log": {1, 0},
	"gload": {0, 1}, "gloads": {1, 1}, "gloadss": {2, 1}, "gaid": {0, 1}, "gaids": {1, 1},
	"box_len": {1, 2}, "box_splice": {4, 0}, "box_resize": {2, 0},

	// inner transactions
	"itxn_begin": {0, 0}, "itxn_next": {0, 0}, "itxn_submit": {0, 0},

	// scratch and frame
	"proto": {0, 0}, "frame_dig": {0, 1}, "frame_bury": {1, 0},
	"popn": {-1, 0}, "dupn": {-1, -1},

	// fixed-size immediates
	"arg": {0, 1}, "args": {1, 1},
	"bytec": {0, 1}, "intc": {0, 1},
}
