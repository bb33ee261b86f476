/*
Package desfire implements the command layer of MIFARE DESFire EV1/EV2/EV3
cards on top of an ISO/IEC 14443-4 transport.

# Frames

A native command is one byte of command code followed by its parameters:

	Cmd || Header || Data || MAC

and the card answers with the response data followed by one status byte.
When a message does not fit one frame it is split: the card answers 0xAF
("additional frame") and the host continues with frames starting with 0xAF.
Responses are chained the same way, the host requesting each further part
with an empty 0xAF frame.

The same frames can travel wrapped in ISO/IEC 7816-4 APDUs (CLA 0x90, native
command code in INS, native status in SW2 after SW1 = 0x91). The Session
switches to wrapped framing after an ISO SELECT or on request.

# Secure messaging

After authentication every command is protected according to the file's
communication mode:

	Plain  data in clear
	MACed  data in clear followed by a MAC
	Full   data enciphered with a checksum or MAC

How the MAC and the cryptogram are computed depends on the authentication
that opened the session: legacy DESFire (D40, DES CBC-MAC and CRC16), EV1
ISO/AES (CMAC chained through the session IV and CRC32) or EV2 (truncated
CMAC over a command counter and transaction identifier, IVs derived per
command).

# Collaborators

Cryptography, key storage, transaction MAC collection and proximity check
are reached through the interfaces in collaborators.go so that a SAM or a
software provider (package swcrypto) can back them.

A Session is not safe for concurrent use.
*/
package desfire
