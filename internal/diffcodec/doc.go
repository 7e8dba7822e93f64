/*
Package diffcodec implements the word-wise XOR/run-length diff used both
for a single getter's bytes between ticks and for a client's whole
outbound message between ticks.

Given two equal-length byte strings prev and cur (padded to a multiple
of 4 bytes), Encode produces an alternating stream of (count uint32,
xor uint32) pairs. Decode walks that stream and XORs each run of count
words by xor onto prev to reconstruct cur. The encoding is lossy about
run boundaries only in the sense that adjacent equal-xor words are
always coalesced into one run; the reconstructed bytes are exact.
*/
package diffcodec
