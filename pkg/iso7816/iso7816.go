/*
Package iso7816 implements the ISO/IEC 7816-4 layer used to talk to MIFARE
DESFire cards: APDU encoding, status words, the interindustry commands the
card supports and a PC/SC client that carries both.

# Fundamentals

Communication is strictly synchronous:
 1. The host sends a Command APDU (header plus optional body).
 2. The card answers with a Response APDU (optional body plus SW1/SW2 trailer).

# DESFire in ISO/IEC 7816-4

DESFire understands two APDU families:
  - Interindustry commands (CLA 00): SELECT, READ BINARY, UPDATE BINARY,
    READ RECORD, APPEND RECORD, UPDATE RECORD, GET CHALLENGE and the
    EXTERNAL/INTERNAL AUTHENTICATE pair.
  - Wrapped native commands (CLA 90): the native command code travels in INS,
    P1 and P2 are zero and the native parameters form the data field. The
    card answers with SW1 = 91 and the native status in SW2 (see WrapNative).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success.
  - 0x61XX: Success, XX more bytes available through GET RESPONSE.
  - 0x6CXX: Wrong Le, XX is the correct one.
  - 0x91XX: Wrapped native status XX (0x9100 success, 0x91AF more frames).
  - Other: error conditions, see the SW_ constants.
*/
package iso7816
